package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/depsentry/depsentry/pkg/audit"
	"github.com/depsentry/depsentry/pkg/resolve"
)

// newResolveCmd creates the resolve command: fetch the transitive closure
// of a single package and print it as JSON.
func newResolveCmd(configPath *string) *cobra.Command {
	var (
		eco      string
		maxDepth int
	)

	cmd := &cobra.Command{
		Use:   "resolve <package> [version]",
		Short: "Resolve a package's transitive dependency closure",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			cfg, err := audit.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			version := resolve.Latest
			if len(args) > 1 {
				version = args[1]
			}
			if maxDepth <= 0 {
				maxDepth = cfg.Resolver.MaxDepth
			}

			var cacheDir string
			if cfg.Cache.Enabled {
				cacheDir = filepath.Join(cfg.Cache.Directory, "metadata")
			}
			r := resolve.New(resolve.Options{
				MaxDepth: maxDepth,
				Workers:  cfg.Resolver.Workers,
				CacheDir: cacheDir,
				Logger:   logger,
			})

			prog := newProgress(logger)
			closure, err := r.Resolve(cmd.Context(), args[0], version, eco)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Resolved %d packages", len(closure)))

			raw, err := json.MarshalIndent(closure, "", "  ")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
			return err
		},
	}

	cmd.Flags().StringVarP(&eco, "ecosystem", "e", "npm", "package ecosystem (npm, pypi)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum traversal depth")
	return cmd
}
