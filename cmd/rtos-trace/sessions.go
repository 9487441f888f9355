package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrzor/rtos-trace/internal/storage"
)

func newSessionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions stored in a SQLite database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			if a.cfg.SQLitePath == "" {
				return fmt.Errorf("--sqlite is required")
			}
			return listSessions(cmd.Context(), a.cfg.SQLitePath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("sqlite", "", "SQLite database to list")
	return cmd
}

func listSessions(_ context.Context, path string, w io.Writer) error {
	store, err := storage.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSOURCE\tPROTOCOL\tEVENTS\tEXIT")
	for _, s := range sessions {
		exit := "-"
		if s.ExitCode.Valid {
			exit = fmt.Sprint(s.ExitCode.Int32)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.StartedAt.Format(time.RFC3339), s.Source, s.Protocol, s.EventCount, exit)
	}
	return tw.Flush()
}
