// Command journalscope decodes Revit journal files, stores them in DuckDB
// and serves them over HTTP.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// app carries the configuration shared by every subcommand.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        appConfig
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	a := &app{v: newViper(home)}

	root := &cobra.Command{
		Use:           "journalscope",
		Short:         "Decode, store and query Revit journal files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.v, a.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "",
		"config file (default is "+filepath.Join("$HOME", ".config", "journalscope", "config.yml")+")")
	root.PersistentFlags().String("db-path", "", "DuckDB database file")
	root.PersistentFlags().Int("max-line-size", 0, "longest physical journal line in bytes")
	bindFlag(a.v, root.PersistentFlags().Lookup("db-path"), "db-path")
	bindFlag(a.v, root.PersistentFlags().Lookup("max-line-size"), "max-line-size")

	root.AddCommand(
		a.decodeCmd(),
		a.queryCmd(),
		a.ingestCmd(),
		a.serveCmd(),
		a.exportCmd(),
		a.snapshotCmd(),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "version",
		Short:            "Print version information",
		Args:             cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "journalscope - Revit journal decoder\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
			fmt.Fprintf(out, "  Go version: %s\n", goVersion)
		},
	}
}
