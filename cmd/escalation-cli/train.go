package main

import (
	"fmt"
	"strings"

	"github.com/paveg/escalation"
	"github.com/paveg/escalation/internal/config"
	"github.com/paveg/escalation/internal/logging"
	"github.com/spf13/cobra"
)

type trainFlags struct {
	configPath     string
	variant        string
	data           string
	sheet          string
	modelOut       string
	predictionsOut string
	plots          string
	metricsFile    string
	seed           uint64
	workers        int
	top            int
}

func newTrainCmd() *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model and report held-out metrics",
		Example: `  escalation-cli train --variant gbm-grid --data complaints.xlsx
  escalation-cli train --config run.yaml --plots plots/ --metrics-file run.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			p, err := printer(cmd)
			if err != nil {
				return err
			}

			res, err := escalation.Run(cmd.Context(), cfg, escalation.WithLogger(logger))
			if err != nil {
				return err
			}

			p.Training(res.Training, f.top)
			p.Stages(res.Stages)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintf(out, "model saved to %s\n", res.ArtifactPath)
			if res.PredictionsPath != "" {
				fmt.Fprintf(out, "test predictions written to %s\n", res.PredictionsPath)
			}
			for _, plot := range res.Plots {
				fmt.Fprintf(out, "plot written to %s\n", plot)
			}
			if res.MetricsFile != "" {
				fmt.Fprintf(out, "metrics written to %s\n", res.MetricsFile)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "configuration file (.yaml, .json or .toml)")
	fl.StringVar(&f.variant, "variant", "", fmt.Sprintf("preset to start from (%s)", joinVariants()))
	fl.StringVarP(&f.data, "data", "d", "", "input data (.csv, .xlsx or .parquet)")
	fl.StringVar(&f.sheet, "sheet", "", "worksheet for .xlsx input (default first)")
	fl.StringVarP(&f.modelOut, "model-out", "o", "", "model artifact path")
	fl.StringVar(&f.predictionsOut, "predictions-out", "", "export test-set predictions (.csv, .xlsx or .parquet)")
	fl.StringVar(&f.plots, "plots", "", "directory for PNG plots")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write a Prometheus textfile with run metrics")
	fl.Uint64Var(&f.seed, "seed", 0, "random seed")
	fl.IntVar(&f.workers, "workers", 0, "worker goroutines (0 = number of CPUs)")
	fl.IntVar(&f.top, "top", 15, "feature importances to print")
	return cmd
}

// resolveConfig layers defaults or a preset, the config file, ESCALATION_*
// variables and finally explicitly set flags.
func resolveConfig(cmd *cobra.Command, f trainFlags) (config.Config, error) {
	var cfg config.Config
	var err error
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFromFile(f.configPath)
		if err == nil && f.variant != "" && cfg.Variant != "" && cfg.Variant != f.variant {
			err = fmt.Errorf("--variant %s conflicts with variant %s in %s", f.variant, cfg.Variant, f.configPath)
		}
		if err == nil && f.variant != "" && cfg.Variant == "" {
			err = fmt.Errorf("--variant cannot be combined with a config file that names no variant; add variant: %s to %s", f.variant, f.configPath)
		}
	case f.variant != "":
		cfg, err = config.Variant(f.variant)
	default:
		cfg = config.NewConfig()
	}
	if err != nil {
		return config.Config{}, err
	}
	if cfg, err = config.ApplyEnv(cfg); err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("data", func() { cfg.DataPath = f.data })
	set("sheet", func() { cfg.Sheet = f.sheet })
	set("model-out", func() { cfg.ArtifactPath = f.modelOut })
	set("predictions-out", func() { cfg.PredictionsPath = f.predictionsOut })
	set("plots", func() { cfg.PlotDir = f.plots })
	set("metrics-file", func() { cfg.MetricsFile = f.metricsFile })
	set("seed", func() { cfg.Seed = f.seed })
	set("workers", func() { cfg.Workers = f.workers })
	if err := applyLogFlags(cmd, &cfg); err != nil {
		return config.Config{}, err
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyLogFlags(cmd *cobra.Command, cfg *config.Config) error {
	for name, dst := range map[string]*string{"log-level": &cfg.LogLevel, "log-format": &cfg.LogFormat} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func joinVariants() string {
	return strings.Join(config.Variants(), ", ")
}
