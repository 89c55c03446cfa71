// Package cli implements the tabula command-line interface: a thin surface
// over a workspace for inspecting and mutating the local stores.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukaforge/tabula/internal/workspace"
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// App carries the open workspace between the root command's pre-run hook
// and the subcommands.
type App struct {
	flags rootFlags
	ws    *workspace.Workspace
}

// NewRootCmd creates the top-level "tabula" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	app := &App{}
	root := &cobra.Command{
		Use:   "tabula",
		Short: "Tabula is a local-first reactive table store",
		Long: "Tabula manages a schema-typed, relationally indexed local table store\n" +
			"with change tracking, snapshot persistence, and multi-device merge.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return app.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
	}

	root.PersistentFlags().StringVar(&app.flags.configDir, "config-dir", "", "configuration directory")
	root.PersistentFlags().StringVar(&app.flags.dataDir, "data-dir", "", "data directory")
	root.PersistentFlags().BoolVar(&app.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(app))
	root.AddCommand(newGetCmd(app))
	root.AddCommand(newSetCmd(app))
	root.AddCommand(newDeleteCmd(app))
	root.AddCommand(newListCmd(app))
	root.AddCommand(newTimelineCmd(app))
	root.AddCommand(newChangesCmd(app))
	root.AddCommand(newPersistCmd(app))

	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *App) open() error {
	cfg, err := loadConfig(a.flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ws, err := workspace.Open(cfg)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}
	a.ws = ws
	return nil
}

func (a *App) close() error {
	if a.ws != nil {
		return a.ws.Close()
	}
	return nil
}
