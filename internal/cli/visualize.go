package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depsentry/depsentry/pkg/audit"
	"github.com/depsentry/depsentry/pkg/depgraph"
)

// newVisualizeCmd creates the visualize command: build the dependency
// graph for a project and emit it as DOT, SVG, or JSON.
func newVisualizeCmd(configPath *string) *cobra.Command {
	var (
		format   string
		output   string
		maxDepth int
	)

	cmd := &cobra.Command{
		Use:   "visualize [dir]",
		Short: "Render a project's dependency graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			cfg, err := audit.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			auditor := audit.New(cfg, logger)
			g, err := auditor.BuildGraph(cmd.Context(), dir)
			if err != nil {
				return err
			}

			var raw []byte
			switch format {
			case "dot":
				raw = []byte(g.ToDOT(depgraph.VisualizeOptions{MaxDepth: maxDepth, Annotate: true}))
			case "svg":
				dot := g.ToDOT(depgraph.VisualizeOptions{MaxDepth: maxDepth})
				raw, err = depgraph.RenderSVG(dot)
				if err != nil {
					return err
				}
			case "json":
				raw, err = g.MarshalJSON()
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported format %q (dot, svg, json)", format)
			}

			name := "graph." + format
			return writeOutput(cmd, output, cfg.Output.Directory, name, raw)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot, svg, json")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, or - for stdout")
	cmd.Flags().IntVar(&maxDepth, "max-depth", depgraph.DefaultVisualizeDepth, "maximum depth to render")
	return cmd
}
