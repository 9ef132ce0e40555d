// Package config provides run configuration for the escalation pipeline
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration of one training or prediction run
type Config struct {
	// Variant names the preset this configuration started from
	Variant string `json:"variant" yaml:"variant" toml:"variant"`

	// Input Configuration
	DataPath    string            `json:"data_path" yaml:"data_path" toml:"data_path"`       // CSV, XLSX or Parquet file
	Sheet       string            `json:"sheet" yaml:"sheet" toml:"sheet"`                   // Worksheet name for XLSX input (empty = first)
	Aliases     map[string]string `json:"aliases" yaml:"aliases" toml:"aliases"`             // Extra header aliases, source -> canonical
	Categorical []string          `json:"categorical" yaml:"categorical" toml:"categorical"` // Categorical feature columns (empty = canonical set)
	Numeric     []string          `json:"numeric" yaml:"numeric" toml:"numeric"`             // Raw numeric feature columns (empty = canonical set)

	// Split Configuration
	TestRatio float64 `json:"test_ratio" yaml:"test_ratio" toml:"test_ratio"` // Share of rows held out for evaluation
	Seed      uint64  `json:"seed" yaml:"seed" toml:"seed"`                   // Seed for every random choice in the run; 0 is a valid seed
	CVFolds   int     `json:"cv_folds" yaml:"cv_folds" toml:"cv_folds"`       // Folds for grid search cross-validation

	// Balancing Configuration
	BalanceMethod string  `json:"balance_method" yaml:"balance_method" toml:"balance_method"` // smote, random or none
	BalanceRatio  float64 `json:"balance_ratio" yaml:"balance_ratio" toml:"balance_ratio"`    // Minority/majority ratio after resampling
	SMOTEK        int     `json:"smote_k" yaml:"smote_k" toml:"smote_k"`                      // SMOTE neighbourhood size

	// Model Configuration
	ModelKind   string           `json:"model_kind" yaml:"model_kind" toml:"model_kind"`       // random_forest or gradient_boosting
	ModelParams map[string]any   `json:"model_params" yaml:"model_params" toml:"model_params"` // Fixed hyperparameters
	Grid        map[string][]any `json:"grid" yaml:"grid" toml:"grid"`                         // Hyperparameter grid (empty = no search)
	Threshold   float64          `json:"threshold" yaml:"threshold" toml:"threshold"`          // Probability cut-off for the escalated label

	// Preprocessing Configuration
	DropFirst         bool   `json:"drop_first" yaml:"drop_first" toml:"drop_first"`                         // Drop the first level of every one-hot column
	CategoricalImpute string `json:"categorical_impute" yaml:"categorical_impute" toml:"categorical_impute"` // constant or most_frequent

	// Output Configuration
	ArtifactPath    string `json:"artifact_path" yaml:"artifact_path" toml:"artifact_path"`          // Model artifact destination
	PredictionsPath string `json:"predictions_path" yaml:"predictions_path" toml:"predictions_path"` // Optional test-set predictions export
	PlotDir         string `json:"plot_dir" yaml:"plot_dir" toml:"plot_dir"`                         // Optional directory for PNG plots
	MetricsFile     string `json:"metrics_file" yaml:"metrics_file" toml:"metrics_file"`             // Optional Prometheus textfile

	// Runtime Configuration
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`    // logrus level name
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"` // text or json
	Workers   int    `json:"workers" yaml:"workers" toml:"workers"`          // Worker goroutines (0 = auto-detect)
}

// Default configuration values
const (
	DefaultTestRatio     = 0.2
	DefaultSeed          = 42
	DefaultCVFolds       = 5
	DefaultBalanceMethod = "smote"
	DefaultBalanceRatio  = 1.0
	DefaultSMOTEK        = 5
	DefaultModelKind     = "gradient_boosting"
	DefaultThreshold     = 0.5
	DefaultImpute        = "constant"
	DefaultArtifactPath  = "escalation_model.escm"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// Preset names
const (
	VariantGBMGrid   = "gbm-grid"
	VariantRFSMOTE   = "rf-smote"
	VariantGBMExport = "gbm-export"
)

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		TestRatio:         DefaultTestRatio,
		Seed:              DefaultSeed,
		CVFolds:           DefaultCVFolds,
		BalanceMethod:     DefaultBalanceMethod,
		BalanceRatio:      DefaultBalanceRatio,
		SMOTEK:            DefaultSMOTEK,
		ModelKind:         DefaultModelKind,
		Threshold:         DefaultThreshold,
		CategoricalImpute: DefaultImpute,
		ArtifactPath:      DefaultArtifactPath,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		Workers:           0, // Auto-detect
	}
}

// Variants lists the preset names
func Variants() []string {
	return []string{VariantGBMExport, VariantGBMGrid, VariantRFSMOTE}
}

// Variant returns the defaults overlaid with a named preset:
// gbm-grid tunes gradient boosting by grid search, rf-smote trains a
// class-weighted random forest with drop-first encoding, and gbm-export
// trains gradient boosting and exports test-set predictions.
func Variant(name string) (Config, error) {
	c := NewConfig()
	c.Variant = name
	switch name {
	case VariantGBMGrid:
		c.ModelKind = "gradient_boosting"
		c.Grid = map[string][]any{
			"n_estimators":  {100, 200},
			"learning_rate": {0.05, 0.1},
			"max_depth":     {3, 5},
		}
	case VariantRFSMOTE:
		c.ModelKind = "random_forest"
		c.ModelParams = map[string]any{
			"n_estimators": 200,
			"class_weight": "balanced",
		}
		c.DropFirst = true
	case VariantGBMExport:
		c.ModelKind = "gradient_boosting"
		c.CategoricalImpute = "most_frequent"
		c.PredictionsPath = "predictions.xlsx"
	default:
		return Config{}, fmt.Errorf("unknown variant %q (known: %s)", name, strings.Join(Variants(), ", "))
	}
	return c, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.TestRatio <= 0 || c.TestRatio >= 1 {
		return fmt.Errorf("TestRatio must be between 0 and 1, got %g", c.TestRatio)
	}

	if c.CVFolds < 0 || c.CVFolds == 1 {
		return fmt.Errorf("CVFolds must be 0 or at least 2, got %d", c.CVFolds)
	}

	if len(c.Grid) > 0 && c.CVFolds < 2 {
		return fmt.Errorf("grid search needs CVFolds of at least 2, got %d", c.CVFolds)
	}

	switch c.BalanceMethod {
	case "smote", "random", "none":
	default:
		return fmt.Errorf("BalanceMethod must be smote, random or none, got %q", c.BalanceMethod)
	}

	if c.BalanceRatio <= 0 || c.BalanceRatio > 1 {
		return fmt.Errorf("BalanceRatio must be in (0, 1], got %g", c.BalanceRatio)
	}

	if c.SMOTEK < 1 {
		return fmt.Errorf("SMOTEK must be positive, got %d", c.SMOTEK)
	}

	switch strings.ToLower(c.ModelKind) {
	case "random_forest", "rf", "gradient_boosting", "gbm":
	default:
		return fmt.Errorf("ModelKind must be random_forest or gradient_boosting, got %q", c.ModelKind)
	}

	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("Threshold must be between 0 and 1, got %g", c.Threshold)
	}

	switch c.CategoricalImpute {
	case "constant", "most_frequent":
	default:
		return fmt.Errorf("CategoricalImpute must be constant or most_frequent, got %q", c.CategoricalImpute)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LogLevel: %w", err)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LogFormat must be text or json, got %q", c.LogFormat)
	}

	if c.Workers < 0 {
		return fmt.Errorf("Workers must be non-negative, got %d", c.Workers)
	}

	for key, values := range c.Grid {
		if len(values) == 0 {
			return fmt.Errorf("grid entry %q has no values", key)
		}
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.TestRatio == 0 {
		c.TestRatio = defaults.TestRatio
	}
	if c.CVFolds == 0 && len(c.Grid) > 0 {
		c.CVFolds = defaults.CVFolds
	}
	if c.BalanceMethod == "" {
		c.BalanceMethod = defaults.BalanceMethod
	}
	if c.BalanceRatio == 0 {
		c.BalanceRatio = defaults.BalanceRatio
	}
	if c.SMOTEK == 0 {
		c.SMOTEK = defaults.SMOTEK
	}
	if c.ModelKind == "" {
		c.ModelKind = defaults.ModelKind
	}
	if c.Threshold == 0 {
		c.Threshold = defaults.Threshold
	}
	if c.CategoricalImpute == "" {
		c.CategoricalImpute = defaults.CategoricalImpute
	}
	if c.ArtifactPath == "" {
		c.ArtifactPath = defaults.ArtifactPath
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}

	// DropFirst has no default; presets set it. Seed 0 is a valid seed.

	return c
}

func decode(ext string, data []byte, dst *Config) error {
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(dst)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".toml":
		md, err := toml.Decode(string(data), dst)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// LoadFromFile loads configuration from a file (supports JSON, YAML, TOML).
// A file naming a variant is overlaid on that preset; otherwise on the
// defaults. Map fields the file sets (grid, model_params, aliases) replace
// the preset's maps rather than merging with them.
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}
	ext := strings.ToLower(filepath.Ext(filename))

	var probe Config
	if err := decode(ext, data, &probe); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	base := NewConfig()
	if probe.Variant != "" {
		if base, err = Variant(probe.Variant); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", filename, err)
		}
	}
	if err := decode(ext, data, &base); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}
	// decoders merge into existing maps; a map the file sets replaces the preset's
	if probe.Grid != nil {
		base.Grid = probe.Grid
	}
	if probe.ModelParams != nil {
		base.ModelParams = probe.ModelParams
	}
	if probe.Aliases != nil {
		base.Aliases = probe.Aliases
	}

	return base.WithDefaults(), nil
}

// LoadFromEnv loads configuration from ESCALATION_* environment variables
// on top of the defaults
func LoadFromEnv() (Config, error) {
	return ApplyEnv(NewConfig())
}

// ApplyEnv overlays ESCALATION_* environment variables onto c. A variable
// that does not parse is an error.
func ApplyEnv(c Config) (Config, error) {
	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv("ESCALATION_" + name); ok && val != "" {
			*dst = val
		}
	}
	var errs []string
	parse := func(name string, set func(string) error) {
		if val, ok := os.LookupEnv("ESCALATION_" + name); ok && val != "" {
			if err := set(val); err != nil {
				errs = append(errs, fmt.Sprintf("ESCALATION_%s=%q: %v", name, val, err))
			}
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.Atoi(v); return }
	}
	floatVar := func(dst *float64) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.ParseFloat(v, 64); return }
	}

	str("DATA", &c.DataPath)
	str("SHEET", &c.Sheet)
	str("BALANCE_METHOD", &c.BalanceMethod)
	str("MODEL_KIND", &c.ModelKind)
	str("CATEGORICAL_IMPUTE", &c.CategoricalImpute)
	str("ARTIFACT", &c.ArtifactPath)
	str("PREDICTIONS", &c.PredictionsPath)
	str("PLOT_DIR", &c.PlotDir)
	str("METRICS_FILE", &c.MetricsFile)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	parse("TEST_RATIO", floatVar(&c.TestRatio))
	parse("BALANCE_RATIO", floatVar(&c.BalanceRatio))
	parse("THRESHOLD", floatVar(&c.Threshold))
	parse("CV_FOLDS", intVar(&c.CVFolds))
	parse("SMOTE_K", intVar(&c.SMOTEK))
	parse("WORKERS", intVar(&c.Workers))
	parse("SEED", func(v string) (err error) { c.Seed, err = strconv.ParseUint(v, 10, 64); return })
	parse("DROP_FIRST", func(v string) (err error) { c.DropFirst, err = strconv.ParseBool(v); return })

	if len(errs) > 0 {
		return c, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return c, nil
}

// Warnings returns advisory notes about settings that are valid but likely
// unintended
func (c Config) Warnings() []string {
	var warnings []string

	if c.Workers > runtime.NumCPU()*2 {
		warnings = append(warnings,
			fmt.Sprintf("Workers (%d) exceeds 2x CPU count (%d), may cause contention", c.Workers, runtime.NumCPU()))
	}

	if c.TestRatio > 0.5 {
		warnings = append(warnings, fmt.Sprintf("TestRatio %g holds out more rows than it trains on", c.TestRatio))
	}

	candidates := 1
	for _, values := range c.Grid {
		candidates *= max(len(values), 1)
	}
	if fits := candidates * max(c.CVFolds, 1); len(c.Grid) > 0 && fits > 200 {
		warnings = append(warnings, fmt.Sprintf("grid search will fit %d models", fits))
	}

	if c.BalanceMethod == "none" && c.ModelKind == "gradient_boosting" {
		warnings = append(warnings, "gradient boosting without balancing is biased toward the majority class")
	}

	return warnings
}
