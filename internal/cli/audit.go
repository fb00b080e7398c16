package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/depsentry/depsentry/pkg/audit"
	"github.com/depsentry/depsentry/pkg/findings"
)

// newAuditCmd creates the audit command: run the full pipeline over a
// project directory or a CycloneDX SBOM and emit the findings report.
func newAuditCmd(configPath *string) *cobra.Command {
	var (
		sbomPath string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "audit [dir]",
		Short: "Audit a project's dependencies for supply-chain risk",
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
			prog := newProgress(logger)

			var report *findings.Report
			if sbomPath != "" {
				report, err = auditor.RunSBOM(cmd.Context(), sbomPath)
			} else {
				report, err = auditor.Run(cmd.Context(), dir)
			}
			if err != nil && report == nil {
				return err
			}
			if err != nil {
				logger.Warn("audit incomplete", "err", err)
			}
			prog.done(fmt.Sprintf("Audited %d packages, %d findings", report.TotalPackages, len(report.Findings)))

			raw, merr := report.MarshalIndent()
			if merr != nil {
				return merr
			}
			return writeOutput(cmd, output, cfg.Output.Directory, "report.json", raw)
		},
	}

	cmd.Flags().StringVar(&sbomPath, "sbom", "", "audit a CycloneDX SBOM instead of a project directory")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, or - for stdout")
	return cmd
}

// writeOutput writes raw to stdout when target is "-", otherwise to target
// (relative paths land under the configured output directory).
func writeOutput(cmd *cobra.Command, target, outDir, defaultName string, raw []byte) error {
	if target == "-" {
		_, err := cmd.OutOrStdout().Write(append(raw, '\n'))
		return err
	}
	if target == "" {
		target = defaultName
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(outDir, target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(target, raw, 0o644); err != nil {
		return err
	}
	loggerFromContext(cmd.Context()).Info("wrote output", "path", target)
	return nil
}
