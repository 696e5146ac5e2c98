package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
)

type InputFlags = contracts.InputFlags

var version = "dev"

var (
	flags    InputFlags
	logLevel string
	noColor  bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdftomanifest",
		Short: "Publish a PDF or a folder of page images as a static IIIF package",
		Long: `pdftomanifest renders the pages of a PDF (or reads a directory of page
images), writes a level-0 IIIF tile pyramid for every page and stitches them
into a Presentation 2.x manifest that any IIIF viewer can open.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVarP(&flags.OutputDir, "out", "o", "", "output directory (default \"output\")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn or error")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(newGenerateCmd(), newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "pdftomanifest", version)
		},
	}
}

// loadConfig merges defaults, the config file, the environment and flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg = cfg.ApplyFlags(flags)
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	cfg = cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("[ERROR]:"), err)
		os.Exit(1)
	}
}
