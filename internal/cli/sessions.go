package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailreader/internal/store"
)

func newSessionsCmd(env *Env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List past watch sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := env.Config.Listen.CheckpointDB
			if path == "" {
				return fmt.Errorf("listen.checkpoint_db is not set")
			}
			st, err := store.NewSQLiteStore(path)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeSessions(env, sessions)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "most recent sessions to show (0 = all)")
	return cmd
}

func writeSessions(env *Env, sessions []store.ListenSession) error {
	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFOLDER\tSTARTED\tDURATION\tDELIVERED")
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.Folder, s.StartedAt.Local().Format(time.DateTime), duration, s.Delivered)
	}
	return tw.Flush()
}
