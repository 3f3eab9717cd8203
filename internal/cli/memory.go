package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluehawksai/bluehawks-cli/internal/llm"
	"github.com/bluehawksai/bluehawks-cli/internal/memory"
)

// NewMemoryCmd manages the long-term memory store.
func NewMemoryCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage long-term memories",
	}

	var memType string
	remember := &cobra.Command{
		Use:   "remember \"<content>\"",
		Short: "Store a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemory(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			m, err := store.Remember(cmd.Context(), args[0], memory.Type(memType), nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remembered %s (%s)\n", m.ID, m.Type)
			return nil
		},
	}
	remember.Flags().StringVar(&memType, "type", string(memory.TypeKnowledge), "Memory type (preference, mistake, knowledge, task_context)")
	cmd.AddCommand(remember)

	var limit int
	search := &cobra.Command{
		Use:   "search \"<query>\"",
		Short: "Search memories by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemory(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			results, err := store.Search(cmd.Context(), args[0], limit, 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "%.3f  [%s] %s  (%s)\n", r.Similarity, r.Memory.Type, r.Memory.Content, r.Memory.ID)
			}
			return nil
		},
	}
	search.Flags().IntVar(&limit, "limit", 5, "Maximum results")
	cmd.AddCommand(search)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemory(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			all, err := store.List(cmd.Context(), "")
			if err != nil {
				return err
			}
			for _, m := range all {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  [%s] %s  %s\n",
					m.ID, m.Type, m.Content, m.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget <id>",
		Short: "Delete one memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemory(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Forget(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemory(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Clear(cmd.Context())
		},
	})

	return cmd
}

func openMemory(opts *Options) (*memory.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(cfg.API.BaseURL, cfg.API.Key, cfg.API.Model)
	return memory.Open(cfg.Memory.Path, client, client, nil)
}
