package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bluehawksai/bluehawks-cli/internal/session"
)

// NewSessionsCmd lists and inspects persisted sessions.
func NewSessionsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := sessionStorage(opts)
			if err != nil {
				return err
			}
			entries, err := storage.Entries()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no saved sessions")
				return nil
			}
			for _, e := range entries {
				name := e.Name
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(out, "%s  %-16s %3d msgs  %s  %s\n",
					e.ID, name, e.MessageCount, e.LastAccessTime.Format("2006-01-02 15:04"), e.Preview)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name|id>",
		Short: "Print a saved session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := sessionStorage(opts)
			if err != nil {
				return err
			}
			s, err := storage.Resume(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range s.Snapshot() {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
			}
			fmt.Fprintf(out, "\n%d messages, %d tokens, tools: %v\n",
				s.MessageCount(), s.Metadata.TotalTokens, s.Metadata.ToolsUsed)
			return nil
		},
	})

	return cmd
}

func sessionStorage(opts *Options) (*session.Storage, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return session.NewStorage(workDir, cfg.Session.Dir), nil
}
