package queue

import (
	"fmt"
	"os"
	"path/filepath"
)

// RecoverCrashed moves every file left in processing/ back to incoming/,
// run once at startup before the poll loop begins. This is what gives
// the system at-least-once delivery semantics across a crash or restart:
// a file sitting in processing/ means some prior process died mid-flight,
// and its message deserves another attempt rather than being lost.
func (s *Store) RecoverCrashed() (int, error) {
	entries, err := os.ReadDir(s.processingDir())
	if err != nil {
		return 0, fmt.Errorf("read processing directory: %w", err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(s.processingDir(), e.Name())
		dst := filepath.Join(s.incomingDir(), e.Name())
		if err := os.Rename(src, dst); err != nil {
			return n, fmt.Errorf("recover %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}
