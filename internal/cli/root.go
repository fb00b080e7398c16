package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/depsentry/depsentry/pkg/buildinfo"
)

// Execute runs the depsentry CLI and returns an error if any command
// fails. The logger is attached to the context and accessible to all
// commands via loggerFromContext.
func Execute(ctx context.Context) error {
	var (
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:          "depsentry",
		Short:        "depsentry audits software supply chains",
		Long:         `depsentry analyzes npm and PyPI dependency trees for known-malicious packages, suspicious install scripts, low-reputation publishers, and structural problems such as cycles and version conflicts.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to depsentry.toml")

	root.AddCommand(newAuditCmd(&configPath))
	root.AddCommand(newResolveCmd(&configPath))
	root.AddCommand(newVisualizeCmd(&configPath))
	root.AddCommand(newCacheCmd(&configPath))

	return root.ExecuteContext(ctx)
}
