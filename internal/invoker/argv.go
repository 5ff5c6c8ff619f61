// Package invoker builds provider-specific CLI argv, applies the
// process-wide concurrency permit, delegates to a sandbox.Runner, and
// parses the provider's stdout into plain text.
package invoker

// anthropicModelAliases maps friendly Claude model names to canonical
// model ids. Unknown names pass through unchanged.
var anthropicModelAliases = map[string]string{
	"sonnet": "claude-sonnet-4-5",
	"opus":   "claude-opus-4-6",
}

// openAIModelAliases maps friendly Codex model names to canonical model
// ids. Unknown names pass through unchanged.
var openAIModelAliases = map[string]string{
	"codex": "gpt-5-codex",
}

// ResolveModel maps a friendly model name to its canonical id for the
// given provider, passing unrecognized names through unchanged.
func ResolveModel(provider, model string) string {
	var aliases map[string]string
	switch provider {
	case "openai":
		aliases = openAIModelAliases
	default:
		aliases = anthropicModelAliases
	}
	if canonical, ok := aliases[model]; ok {
		return canonical
	}
	return model
}

// BuildArgv constructs the command and argv for one provider invocation.
// reset is true when the conversation should start fresh rather than
// resume the provider's own session state.
func BuildArgv(provider, model, message string, reset bool) (command string, args []string) {
	switch provider {
	case "openai":
		args = []string{"exec"}
		if !reset {
			args = append(args, "resume", "--last")
		}
		if model != "" {
			args = append(args, "--model", ResolveModel(provider, model))
		}
		args = append(args, "--skip-git-repo-check", "--dangerously-bypass-approvals-and-sandbox", "--json", message)
		return "codex", args
	default:
		args = []string{"--dangerously-skip-permissions"}
		if model != "" {
			args = append(args, "--model", ResolveModel(provider, model))
		}
		if !reset {
			args = append(args, "-c")
		}
		args = append(args, "-p", message)
		return "claude", args
	}
}
