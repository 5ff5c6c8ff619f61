package orchestrator

import (
	"os"
	"path/filepath"
)

// globalResetFlagName is the fixed filename under the workspace root.
const globalResetFlagName = "reset_flag"

// perAgentResetFlagName is the fixed filename inside each agent's own
// working directory.
const perAgentResetFlagName = "reset_flag"

// shouldReset reports whether the global or this agent's own reset flag is
// present, and consumes (deletes) every flag found rather than stopping at
// the first — any existing reset file is deleted on consumption, so a
// global flag left unconsumed here would otherwise leak into the first
// step of the next message. The global flag is only ever honored by the
// caller for the first step of a chain; perAgentOnly forces that
// restriction.
func shouldReset(workspaceRoot, agentWorkingDir string, perAgentOnly bool) bool {
	reset := false

	perAgentPath := filepath.Join(agentWorkingDir, perAgentResetFlagName)
	if _, err := os.Stat(perAgentPath); err == nil {
		os.Remove(perAgentPath)
		reset = true
	}

	if perAgentOnly {
		return reset
	}

	globalPath := filepath.Join(workspaceRoot, globalResetFlagName)
	if _, err := os.Stat(globalPath); err == nil {
		os.Remove(globalPath)
		reset = true
	}
	return reset
}
