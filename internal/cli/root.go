// Package cli implements flowctl, the offline companion of the FlowEngine
// server: it validates, lays out, converts and runs workflow documents.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/config"
	"github.com/AaronLay10/FlowEngine/internal/logging"
	"github.com/AaronLay10/FlowEngine/internal/registry"
	"github.com/AaronLay10/FlowEngine/internal/version"
)

type rootOptions struct {
	catalog  string
	logLevel string
	noColor  bool
}

func (o *rootOptions) logger() *zap.Logger {
	l, err := logging.New(config.LogConfig{Level: o.logLevel, Format: "console"})
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// registry returns the built-in node types plus the --catalog ones.
func (o *rootOptions) registry() (*registry.Registry, error) {
	r := registry.NewDefault()
	if o.catalog != "" {
		if err := r.LoadCatalog(o.catalog); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewRootCmd builds the flowctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "flowctl: work with FlowEngine workflow documents",
		Long:          brand.Sprint("flowctl") + " validates, lays out, converts and dry-runs workflow documents\n" + subtle.Sprint("Documents are JSON or YAML, picked by file extension"),
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				disableColor()
			}
		},
	}
	root.SetVersionTemplate("flowctl {{ .Version }}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.catalog, "catalog", os.Getenv(config.EnvPrefix+"CATALOG"), "YAML catalog of extra node types")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level for engine output")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		validateCmd(opts),
		layoutCmd(opts),
		convertCmd(),
		runCmd(opts),
		catalogCmd(opts),
		versionCmd(),
	)
	return root
}

// Execute runs flowctl and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "%s %v\n", bad.Sprint("flowctl:"), err)
		return 1
	}
	return 0
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flowctl %s\n", version.String())
		},
	}
}
