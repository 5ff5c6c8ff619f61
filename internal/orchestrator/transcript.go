package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/internal/router"
)

// writeTranscript appends a fixed-layout markdown record of one team run
// to chats/<teamId>/<timestamp>.md. Single-agent runs (no team) don't get
// a transcript file — there's no handoff history worth recording.
func writeTranscript(chatsDir, teamID string, route router.Route, result *runResult, startedAt time.Time) error {
	dir := filepath.Join(chatsDir, teamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chat history directory: %w", err)
	}

	name := fmt.Sprintf("%s-%03dZ.md", startedAt.UTC().Format("2006-01-02T15-04-05"), startedAt.Nanosecond()/1e6)
	path := filepath.Join(dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "# Team chain — %s\n\n", teamID)
	fmt.Fprintf(&b, "Started: %s\n\n", startedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Initial target: @%s\n\n", route.AgentID)
	fmt.Fprintf(&b, "## Initial message\n\n%s\n\n", route.Message)
	for i, step := range result.Steps {
		fmt.Fprintf(&b, "## Step %d: @%s\n\n%s\n\n", i+1, step.AgentID, step.Response)
	}
	fmt.Fprintf(&b, "## Final response\n\n%s\n", result.Final)

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
