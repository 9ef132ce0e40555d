// Command escalation-cli trains and applies the complaint escalation
// classifier.
package main

import (
	"fmt"
	"os"

	"github.com/paveg/escalation/internal/report"
	"github.com/paveg/escalation/internal/version"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "escalation-cli",
		Short:         "Complaint escalation classifier",
		Long:          `Train, evaluate and apply a classifier that predicts whether a customer complaint will be escalated.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("color", report.ColorAuto, "colorize output (auto|always|never)")
	root.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	root.PersistentFlags().String("log-format", "", "log format (text|json)")

	root.AddCommand(newTrainCmd())
	root.AddCommand(newPredictCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// main executes the root command; any error is printed and the process
// exits with status 1.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// printer builds a report printer for the command's stdout honouring --color.
func printer(cmd *cobra.Command) (*report.Printer, error) {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return nil, err
	}
	out := cmd.OutOrStdout()
	colored, err := report.UseColor(out, mode)
	if err != nil {
		return nil, err
	}
	return report.NewPrinter(out, colored), nil
}
