package orchestrator

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

var sendFileTag = regexp.MustCompile(`\[send_file:\s*([^\]]+)\]`)

// resolveOutbound scans text for "[send_file: <path>]" tags, resolves
// each against the union of path mappings collected across every
// invocation in this message's lifetime, strips the tags from the text,
// and appends a single trailing warning line listing up to three missing
// paths. The returned files slice is deduplicated; order is not
// significant per the data model.
func resolveOutbound(text string, mappings []sandbox.PathMapping) (cleaned string, files []string) {
	seen := make(map[string]bool)
	var missing []string

	cleaned = sendFileTag.ReplaceAllStringFunc(text, func(m string) string {
		sub := sendFileTag.FindStringSubmatch(m)
		raw := strings.TrimSpace(sub[1])

		path, ok := resolvePath(raw, mappings)
		if !ok {
			missing = append(missing, raw)
			return ""
		}
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
		return ""
	})

	cleaned = strings.TrimSpace(collapseBlankRuns(cleaned))

	if len(missing) > 0 {
		shown := missing
		if len(shown) > 3 {
			shown = shown[:3]
		}
		cleaned = strings.TrimSpace(cleaned) + "\n\n[Could not locate: " + strings.Join(shown, ", ") + "]"
	}

	return cleaned, files
}

// resolvePath checks raw as a host path first, then tries every mapping
// whose container prefix is a path-separator-bounded prefix of raw.
func resolvePath(raw string, mappings []sandbox.PathMapping) (string, bool) {
	if _, err := os.Stat(raw); err == nil {
		return raw, true
	}
	for _, m := range mappings {
		if rewritten, ok := rewriteWithPrefix(raw, m); ok {
			if _, err := os.Stat(rewritten); err == nil {
				return rewritten, true
			}
		}
	}
	return "", false
}

func rewriteWithPrefix(raw string, m sandbox.PathMapping) (string, bool) {
	prefix := m.ContainerPrefix
	if raw == prefix {
		return m.HostPrefix, true
	}
	if strings.HasPrefix(raw, prefix+"/") {
		return m.HostPrefix + raw[len(prefix):], true
	}
	return "", false
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func collapseBlankRuns(s string) string {
	return blankRuns.ReplaceAllString(s, "\n\n")
}

// applyLengthCap trims text, then, if it still exceeds
// protocol.ResponseMaxChars, truncates to protocol.ResponseTruncateAt
// and appends the fixed truncation marker on its own line.
func applyLengthCap(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= protocol.ResponseMaxChars {
		return text
	}
	return fmt.Sprintf("%s\n\n%s", text[:protocol.ResponseTruncateAt], protocol.TruncationMarker)
}
