package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bluehawksai/bluehawks-cli/internal/core"
	"github.com/bluehawksai/bluehawks-cli/internal/daemon"
	"github.com/bluehawksai/bluehawks-cli/internal/logging"
	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

// NewServeCmd starts the daemon exposing the chat stream, metrics, and
// tool schemas.
func NewServeCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bluehawks daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			c, err := core.Build(cmd.Context(), cfg, logger, core.Options{})
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			// Headless serving cannot prompt: the mode is forced to
			// unsafe-only with a deny-all callback, so only auto-safe tools
			// run whatever agent.approval_mode says.
			c.Executor.SetApprovalCallback(func(string, map[string]any) bool { return false })
			c.Executor.SetApprovalMode(tools.ApprovalUnsafeOnly)

			server := daemon.NewServer(cfg, logger, c)
			return server.Run(cmd.Context())
		},
	}
}
