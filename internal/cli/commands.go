package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dukaforge/tabula/pkg/store"
)

const version = "v0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tabula", version)
		},
	}
}

func newInitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the local store",
		Long:  "Initialize the data directory, create the default config row, and save a first snapshot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.ws.EnsureConfig(); err != nil {
				return err
			}
			if err := app.ws.Persist(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Workspace initialized")
			return nil
		},
	}
}

func newGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <row-id>",
		Short: "Print a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cells, ok := app.ws.Persisted.GetRow(args[0], args[1])
			if !ok {
				return fmt.Errorf("row %s/%s not found", args[0], args[1])
			}
			return printJSON(cmd, cells)
		},
	}
}

func newSetCmd(app *App) *cobra.Command {
	var partial bool
	cmd := &cobra.Command{
		Use:   "set <table> <row-id> <cells-json>",
		Short: "Create or replace a row from JSON cells",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cells store.Cells
			if err := json.Unmarshal([]byte(args[2]), &cells); err != nil {
				return fmt.Errorf("parse cells: %w", err)
			}
			if partial {
				return app.ws.Persisted.SetPartialRow(args[0], args[1], cells)
			}
			return app.ws.Persisted.SetRow(args[0], args[1], cells)
		},
	}
	cmd.Flags().BoolVar(&partial, "partial", false, "merge into the existing row instead of replacing it")
	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <row-id>",
		Short: "Delete a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ws.Persisted.DelRow(args[0], args[1])
		},
	}
}

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list <table>",
		Short: "List a table's rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := app.ws.Persisted.GetTable(args[0])
			if app.flags.jsonMode {
				return printJSON(cmd, table)
			}
			ids := make([]string, 0, len(table))
			for id := range table {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				name := firstString(table[id], "title", "name", "content")
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, name)
			}
			return nil
		},
	}
}

func newTimelineCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline",
		Short: "Print the session timeline, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := app.ws.Timeline()
			if app.flags.jsonMode {
				return printJSON(cmd, rows)
			}
			for _, r := range rows {
				title := r.Title
				if title == "" {
					title = "Untitled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.DisplayDate, r.SessionID, title)
			}
			return nil
		},
	}
}

func newChangesCmd(app *App) *cobra.Command {
	var ack string
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Print pending change-ledger records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ack != "" {
				return app.ws.Ledger.Ack(ack)
			}
			pending := app.ws.Ledger.Pending()
			if app.flags.jsonMode {
				return printJSON(cmd, pending)
			}
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				rec := pending[id]
				op := "updated"
				if deleted, _ := rec["deleted"].(bool); deleted {
					op = "deleted"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, op)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ack, "ack", "", "acknowledge (remove) the given change record")
	return cmd
}

func newPersistCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "persist",
		Short: "Save a snapshot immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ws.Persist()
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func firstString(cells store.Cells, columns ...string) string {
	for _, col := range columns {
		if v, _ := cells[col].(string); v != "" {
			return v
		}
	}
	return ""
}
