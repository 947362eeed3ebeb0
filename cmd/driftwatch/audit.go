package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alevsk/driftwatch/internal/audit"
	"github.com/alevsk/driftwatch/internal/inventory"
	"github.com/alevsk/driftwatch/internal/report"
)

var auditOutput string

var auditCmd = &cobra.Command{
	Use:   "audit [manifest-source]",
	Short: "Audit the cluster against its declarative source of truth",
	Long: `Audit enumerates the live cluster, renders the declarative source and
reports every resource or field that exists outside of it, plus imperative
mutation commands found in configured code roots.

The manifest source can be a rendered YAML file, a folder of manifests, a
packaged helm chart (.tgz) or a kustomize overlay.

Examples:
  # Audit against a rendered manifest file
  driftwatch audit manifests.yaml

  # Audit against a folder of manifests
  driftwatch audit ./deploy/

  # Audit against a kustomize overlay
  driftwatch audit ./overlays/production/

Exit codes: 0 no findings above INFO, 1 warnings, 2 critical findings,
3 the audit could not complete at all.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("output") {
			cfg.Output = auditOutput
		}
		formatterType, err := report.ParseType(cfg.Output)
		if err != nil {
			return err
		}
		formatter, err := report.NewFormatter(formatterType)
		if err != nil {
			return err
		}

		lister, err := inventory.NewKubeLister(cfg.Kubeconfig)
		if err != nil {
			return &audit.AcquisitionError{Phase: "inventory", Err: err}
		}
		runner, err := audit.NewRunner(cfg, lister)
		if err != nil {
			return err
		}

		rep, err := runner.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out, err := formatter.Format(rep)
		if err != nil {
			return fmt.Errorf("error formatting report: %w", err)
		}
		fmt.Print(out)

		if code := report.ExitCode(rep); code != report.ExitClean {
			os.Exit(code)
		}
		return nil
	},
}

// exitCodeFor maps a command error to the process exit code. Any error
// means no report was produced, so the fatal code applies across the
// board, acquisition failure or not; codes 1 and 2 are reserved for
// warning and critical findings.
func exitCodeFor(err error) int {
	if err == nil {
		return report.ExitClean
	}
	return report.ExitFatal
}

func init() {
	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "table", "output format (table, json, yaml)")
}
