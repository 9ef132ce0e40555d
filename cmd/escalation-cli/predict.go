package main

import (
	"fmt"

	"github.com/paveg/escalation"
	"github.com/paveg/escalation/internal/metrics"
	"github.com/spf13/cobra"
)

func newPredictCmd() *cobra.Command {
	var (
		modelPath string
		dataPath  string
		sheet     string
		outPath   string
		chunkSize int
	)
	cmd := &cobra.Command{
		Use:     "predict",
		Short:   "Score complaints with a saved model",
		Example: `  escalation-cli predict --model escalation_model.escm --data new.csv --out predictions.xlsx`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := printer(cmd)
			if err != nil {
				return err
			}
			m, err := escalation.LoadModel(modelPath)
			if err != nil {
				return err
			}
			ds, err := escalation.LoadDataset(dataPath, sheet, nil)
			if err != nil {
				return err
			}
			defer ds.Release()

			preds, err := m.PredictChunked(cmd.Context(), ds, chunkSize)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := preds.Export(outPath, nil); err != nil {
					return fmt.Errorf("exporting predictions: %w", err)
				}
			}
			p.Predictions(preds.Labels, outPath)

			// labelled input doubles as an evaluation set
			if preds.Actual != nil {
				rep, err := metrics.ClassificationReport(preds.Actual, preds.Labels, preds.Probabilities)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprint(cmd.OutOrStdout(), rep.String())
				p.Confusion(rep.Confusion)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&modelPath, "model", "m", "", "model artifact")
	fl.StringVarP(&dataPath, "data", "d", "", "complaints to score (.csv, .xlsx or .parquet)")
	fl.StringVar(&sheet, "sheet", "", "worksheet for .xlsx input (default first)")
	fl.StringVarP(&outPath, "out", "o", "", "write predictions (.csv, .xlsx or .parquet)")
	fl.IntVar(&chunkSize, "chunk-size", escalation.DefaultChunkSize, "rows scored per batch")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
