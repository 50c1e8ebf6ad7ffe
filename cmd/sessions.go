// File: cmd/sessions.go
package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/checkout-cli/internal/observability"
	"github.com/xkilldash9x/checkout-cli/internal/sessionstore"
)

// newSessionsCmd groups the stored-session management commands.
func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manages stored login sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCmd(), newSessionsDeleteCmd())
	return sessionsCmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists stored login sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := newSessionStore(ctx, appConfig, observability.GetLogger())
			if err != nil {
				return err
			}
			defer closeStore()

			sessions, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored sessions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%d B\t%s\n",
					s.Name, s.SizeBytes, s.ModifiedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Deletes a stored login session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := newSessionStore(ctx, appConfig, observability.GetLogger())
			if err != nil {
				return err
			}
			defer closeStore()

			name := args[0]
			if err := store.Delete(ctx, name); err != nil {
				if errors.Is(err, sessionstore.ErrNotFound) {
					return fmt.Errorf("no stored session named %q", name)
				}
				return fmt.Errorf("failed to delete session %q: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %q.\n", name)
			return nil
		},
	}
}
