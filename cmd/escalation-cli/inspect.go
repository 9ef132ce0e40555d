package main

import (
	"encoding/json"

	"github.com/paveg/escalation"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		modelPath string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show what a model artifact records about its training run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := escalation.LoadModel(modelPath)
			if err != nil {
				return err
			}
			meta := m.Metadata()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Threshold float64 `json:"threshold"`
					Metadata  any     `json:"metadata"`
				}{m.Threshold(), meta})
			}

			p, err := printer(cmd)
			if err != nil {
				return err
			}
			p.Metadata(meta, m.Threshold())
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "model artifact")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print metadata as JSON")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
