package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and
// environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. API: %s, model: %q\n", cfg.API.BaseURL, cfg.API.Model)
			if cfg.API.Key == "" {
				fmt.Fprintln(out, "Warning: no API key configured (BLUEHAWKS_API_KEY)")
			}
			fmt.Fprintf(out, "Approval mode: %s, max iterations: %d\n", cfg.Agent.ApprovalMode, cfg.Agent.MaxIterations)
			fmt.Fprintf(out, "Memory: enabled=%v path=%s\n", cfg.Memory.Enabled, cfg.Memory.Path)
			fmt.Fprintf(out, "MCP servers: %d, hooks file: %s\n", len(cfg.MCP), cfg.Hooks.File)
			if _, err := os.Stat(cfg.Hooks.File); err == nil {
				fmt.Fprintln(out, "Hooks file present")
			}
			return nil
		},
	}
}
