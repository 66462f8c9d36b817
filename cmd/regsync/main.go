// Command regsync keeps a registry subtree and a JSON document in sync.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/regsync/regsync/internal/config"
	"github.com/regsync/regsync/internal/daemon"
	"github.com/regsync/regsync/internal/ui"

	// Store backends register themselves.
	_ "github.com/regsync/regsync/internal/store/dirstore"
	_ "github.com/regsync/regsync/internal/store/memstore"
	_ "github.com/regsync/regsync/internal/store/sqlstore"
	_ "github.com/regsync/regsync/internal/store/winreg"
)

// v holds the resolved settings of the running command.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "regsync [flags] DOCUMENT ROOT",
	Short: "Keep a registry subtree and a JSON document in sync",
	Long: `regsync mirrors a subtree of a hierarchical key-value store (the Windows
registry, or a directory or SQLite emulation of it) into a JSON document and
back.

In the default sync mode regsync:
  1. Restores ROOT from DOCUMENT, if the document exists and is non-empty
  2. Dumps ROOT to DOCUMENT
  3. Watches ROOT and dumps again after every burst of changes, until stopped

DOCUMENT is written atomically; the previous version is kept as DOCUMENT.bak.
ROOT is a key path such as HKCU\Software\MyApp.`,
	Example: `  regsync settings.json 'HKCU\Software\MyApp'
  regsync --restore --full settings.json HKCU/Software/MyApp
  regsync --store sqlite --store-dsn state.db --backup out.yaml HKLM/Software/Vendor`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args) == 2 {
			return nil
		}
		return fmt.Errorf("expected DOCUMENT and ROOT, got %d argument(s)", len(args))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Bind(v, cmd.Flags())
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			_ = cmd.Help()
			return
		}

		cfg, err := config.Load(v, args[0], args[1])
		if err != nil {
			exitCode = exitCodeFor(err)
			fatal("Error in configuration", err)
		}
		if err := runSync(cfg); err != nil {
			exitCode = exitCodeFor(err)
			fatal("Error", err)
		}
	},
}

func init() {
	cobra.OnInitialize(func() { config.Init(v) })
	config.AddFlags(rootCmd.PersistentFlags())
}

const (
	exitFailure = 1
	// exitSetup reports that the document or store could not be prepared,
	// the root is not supported or the backend is unknown.
	exitSetup = 2
)

var exitCode = exitFailure

func exitCodeFor(err error) int {
	if daemon.IsFatal(err) {
		return exitSetup
	}
	return exitFailure
}

// fatal prints a one-line report and exits nonzero.
func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", ui.RenderError(what), err)
	os.Exit(exitCode)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal("Error", err)
	}
}
