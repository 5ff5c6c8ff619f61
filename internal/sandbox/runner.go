package sandbox

import "context"

// Runner executes one Request under a particular isolation mode.
type Runner interface {
	Run(ctx context.Context, cfg Config, req Request) (*Result, error)
}

// New returns the Runner for cfg.Mode.
func New(cfg Config) Runner {
	switch cfg.Mode {
	case ModeDocker, ModeApple:
		return &containerRunner{}
	default:
		return &hostRunner{}
	}
}
