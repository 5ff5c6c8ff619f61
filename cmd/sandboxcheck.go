package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
)

// sandboxCheckCmd runs the same preflight checks the real invocation
// path performs for one named agent, without invoking anything. It is
// distinct from an interactive sandbox doctor: no remediation flow, no
// prompts, just the verdict.
func sandboxCheckCmd() *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "sandbox-check",
		Short: "Run sandbox preflight checks for one agent without invoking it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			agent, ok := cfg.Agents[agentID]
			if !ok {
				return fmt.Errorf("unknown agent %q", agentID)
			}

			sbCfg := cfg.ToSandboxConfig(agentID)
			if sbCfg.Mode == sandbox.ModeHost {
				fmt.Printf("agent %q runs in host mode; no preflight checks apply\n", agentID)
				return nil
			}

			if err := sandbox.Preflight(sbCfg, agent.Provider); err != nil {
				fmt.Printf("agent %q would FAIL preflight: %v\n", agentID, err)
				return nil
			}
			fmt.Printf("agent %q passes preflight for mode %q\n", agentID, sbCfg.Mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id to check (required)")
	cmd.MarkFlagRequired("agent")
	return cmd
}
