// Package logging wires the process's structured text logger: stdout
// plus the append-only logs/queue.log file, toggled between info and
// debug level by the verbose flag.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
)

// New builds the process-wide slog.Logger, writing to stdout and to
// logs/queue.log simultaneously. verbose raises the level to debug.
func New(logsDir string, verbose bool) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create logs directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logsDir, "queue.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open queue.log: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	out := io.MultiWriter(os.Stdout, f)
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
		// String and error values go through the same sanitizer as event
		// payloads, so API-key assignments never reach stdout or queue.log.
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Value.Kind() {
			case slog.KindString:
				return slog.String(a.Key, sandbox.Redact(a.Value.String()))
			case slog.KindAny:
				if err, ok := a.Value.Any().(error); ok {
					return slog.String(a.Key, sandbox.Redact(err.Error()))
				}
			}
			return a
		},
	}))
	return logger, f.Close, nil
}
