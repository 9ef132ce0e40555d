package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/escalation/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, pattern, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), pattern)
	require.NoError(t, err)
	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

func TestConfig_DefaultValues(t *testing.T) {
	cfg := config.NewConfig()

	assert.InDelta(t, 0.2, cfg.TestRatio, 1e-12)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 5, cfg.CVFolds)
	assert.Equal(t, "smote", cfg.BalanceMethod)
	assert.InDelta(t, 1.0, cfg.BalanceRatio, 1e-12)
	assert.Equal(t, 5, cfg.SMOTEK)
	assert.Equal(t, "gradient_boosting", cfg.ModelKind)
	assert.InDelta(t, 0.5, cfg.Threshold, 1e-12)
	assert.Equal(t, "constant", cfg.CategoricalImpute)
	assert.Equal(t, 0, cfg.Workers) // 0 means auto-detect
	assert.False(t, cfg.DropFirst)
	assert.Empty(t, cfg.Grid)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Variants(t *testing.T) {
	grid, err := config.Variant(config.VariantGBMGrid)
	require.NoError(t, err)
	assert.Equal(t, "gradient_boosting", grid.ModelKind)
	assert.Len(t, grid.Grid, 3)
	assert.Equal(t, []any{0.05, 0.1}, grid.Grid["learning_rate"])
	require.NoError(t, grid.Validate())

	rf, err := config.Variant(config.VariantRFSMOTE)
	require.NoError(t, err)
	assert.Equal(t, "random_forest", rf.ModelKind)
	assert.Equal(t, "balanced", rf.ModelParams["class_weight"])
	assert.True(t, rf.DropFirst)
	require.NoError(t, rf.Validate())

	export, err := config.Variant(config.VariantGBMExport)
	require.NoError(t, err)
	assert.Equal(t, "predictions.xlsx", export.PredictionsPath)
	assert.Equal(t, "most_frequent", export.CategoricalImpute)
	require.NoError(t, export.Validate())

	_, err = config.Variant("xgboost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variant")
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *config.Config)
		expectedError string
	}{
		{
			name:          "valid config",
			mutate:        func(*config.Config) {},
			expectedError: "",
		},
		{
			name:          "test ratio out of range",
			mutate:        func(c *config.Config) { c.TestRatio = 1 },
			expectedError: "TestRatio must be between 0 and 1, got 1",
		},
		{
			name:          "single fold",
			mutate:        func(c *config.Config) { c.CVFolds = 1 },
			expectedError: "CVFolds must be 0 or at least 2, got 1",
		},
		{
			name: "grid without folds",
			mutate: func(c *config.Config) {
				c.CVFolds = 0
				c.Grid = map[string][]any{"max_depth": {3}}
			},
			expectedError: "grid search needs CVFolds of at least 2, got 0",
		},
		{
			name:          "unknown balance method",
			mutate:        func(c *config.Config) { c.BalanceMethod = "adasyn" },
			expectedError: `BalanceMethod must be smote, random or none, got "adasyn"`,
		},
		{
			name:          "balance ratio above one",
			mutate:        func(c *config.Config) { c.BalanceRatio = 1.5 },
			expectedError: "BalanceRatio must be in (0, 1], got 1.5",
		},
		{
			name:          "zero neighbours",
			mutate:        func(c *config.Config) { c.SMOTEK = 0 },
			expectedError: "SMOTEK must be positive, got 0",
		},
		{
			name:          "unknown model",
			mutate:        func(c *config.Config) { c.ModelKind = "svm" },
			expectedError: `ModelKind must be random_forest or gradient_boosting, got "svm"`,
		},
		{
			name:          "threshold zero",
			mutate:        func(c *config.Config) { c.Threshold = 0 },
			expectedError: "Threshold must be between 0 and 1, got 0",
		},
		{
			name:          "unknown impute strategy",
			mutate:        func(c *config.Config) { c.CategoricalImpute = "mean" },
			expectedError: `CategoricalImpute must be constant or most_frequent, got "mean"`,
		},
		{
			name:          "bad log format",
			mutate:        func(c *config.Config) { c.LogFormat = "xml" },
			expectedError: `LogFormat must be text or json, got "xml"`,
		},
		{
			name:          "negative workers",
			mutate:        func(c *config.Config) { c.Workers = -1 },
			expectedError: "Workers must be non-negative, got -1",
		},
		{
			name:          "empty grid entry",
			mutate:        func(c *config.Config) { c.Grid = map[string][]any{"max_depth": {}} },
			expectedError: `grid entry "max_depth" has no values`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.expectedError, err.Error())
			}
		})
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	path := writeConfig(t, "config_test_*.json", `{
		"data_path": "complaints.csv",
		"seed": 7,
		"model_kind": "random_forest",
		"model_params": {"n_estimators": 50}
	}`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "complaints.csv", cfg.DataPath)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "random_forest", cfg.ModelKind)
	assert.InDelta(t, 50.0, cfg.ModelParams["n_estimators"], 1e-12)
	// Untouched fields keep their defaults
	assert.Equal(t, "smote", cfg.BalanceMethod)
}

func TestConfig_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, "config_test_*.yaml", `
variant: rf-smote
data_path: complaints.xlsx
sheet: Q3
aliases:
  Kanal: channel
balance_ratio: 0.8
`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "rf-smote", cfg.Variant)
	assert.Equal(t, "random_forest", cfg.ModelKind)
	assert.True(t, cfg.DropFirst)
	assert.Equal(t, "Q3", cfg.Sheet)
	assert.Equal(t, "channel", cfg.Aliases["Kanal"])
	assert.InDelta(t, 0.8, cfg.BalanceRatio, 1e-12)
}

func TestConfig_LoadFromTOML(t *testing.T) {
	path := writeConfig(t, "config_test_*.toml", `
variant = "gbm-grid"
cv_folds = 3

[grid]
max_depth = [2, 4]
`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.CVFolds)
	assert.Equal(t, []any{int64(2), int64(4)}, cfg.Grid["max_depth"])
	// The file's grid replaces the preset grid
	assert.Len(t, cfg.Grid, 1)
}

func TestConfig_LoadFromFileReplacesPresetMaps(t *testing.T) {
	t.Run("partial grid", func(t *testing.T) {
		path := writeConfig(t, "config_test_*.yaml", `
variant: gbm-grid
grid:
  max_depth: [2]
`)
		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, map[string][]any{"max_depth": {2}}, cfg.Grid)
	})

	t.Run("empty grid disables search", func(t *testing.T) {
		path := writeConfig(t, "config_test_*.yaml", `
variant: gbm-grid
grid: {}
`)
		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Empty(t, cfg.Grid)
		require.NoError(t, cfg.Validate())
	})

	t.Run("empty json grid", func(t *testing.T) {
		path := writeConfig(t, "config_test_*.json", `{"variant": "gbm-grid", "grid": {}}`)
		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Empty(t, cfg.Grid)
	})

	t.Run("model params", func(t *testing.T) {
		path := writeConfig(t, "config_test_*.yaml", `
variant: rf-smote
model_params:
  max_depth: 4
`)
		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"max_depth": 4}, cfg.ModelParams)
	})

	t.Run("preset maps kept when the file is silent", func(t *testing.T) {
		path := writeConfig(t, "config_test_*.yaml", "variant: gbm-grid\ncv_folds: 3\n")
		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		preset, err := config.Variant("gbm-grid")
		require.NoError(t, err)
		assert.Equal(t, preset.Grid, cfg.Grid)
	})
}

func TestConfig_SeedZero(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Seed = 0
	assert.Equal(t, uint64(0), cfg.WithDefaults().Seed)

	path := writeConfig(t, "config_test_*.yaml", "seed: 0\n")
	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cfg.Seed)

	path = writeConfig(t, "config_test_*.yaml", "model_kind: rf\n")
	cfg, err = config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(config.DefaultSeed), cfg.Seed)
}

func TestConfig_UnsupportedFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("seed=1"), 0o600))

	_, err := config.LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}

func TestConfig_UnknownKeys(t *testing.T) {
	path := writeConfig(t, "config_test_*.yaml", "model: gbm\n")
	_, err := config.LoadFromFile(path)
	require.Error(t, err)

	path = writeConfig(t, "config_test_*.toml", "modle_kind = \"gbm\"\n")
	_, err = config.LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modle_kind")
}

func TestConfig_LoadFromNonExistentFile(t *testing.T) {
	_, err := config.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("ESCALATION_DATA", "env.parquet")
	t.Setenv("ESCALATION_SEED", "99")
	t.Setenv("ESCALATION_TEST_RATIO", "0.3")
	t.Setenv("ESCALATION_DROP_FIRST", "true")
	t.Setenv("ESCALATION_MODEL_KIND", "rf")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "env.parquet", cfg.DataPath)
	assert.Equal(t, uint64(99), cfg.Seed)
	assert.InDelta(t, 0.3, cfg.TestRatio, 1e-12)
	assert.True(t, cfg.DropFirst)
	assert.Equal(t, "rf", cfg.ModelKind)
}

func TestConfig_EnvironmentVariableParsing(t *testing.T) {
	t.Setenv("ESCALATION_CV_FOLDS", "five")
	t.Setenv("ESCALATION_THRESHOLD", "high")

	_, err := config.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ESCALATION_CV_FOLDS")
	assert.Contains(t, err.Error(), "ESCALATION_THRESHOLD")
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := config.Config{
		DataPath:  "x.csv",
		ModelKind: "random_forest",
		// Other fields left as zero values
	}.WithDefaults()

	assert.Equal(t, "x.csv", cfg.DataPath)
	assert.Equal(t, "random_forest", cfg.ModelKind)
	assert.InDelta(t, 0.2, cfg.TestRatio, 1e-12)
	assert.Equal(t, uint64(0), cfg.Seed) // zero is a valid seed
	assert.Equal(t, 0, cfg.CVFolds)      // no grid, no folds needed
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Warnings(t *testing.T) {
	cfg := config.NewConfig()
	assert.Empty(t, cfg.Warnings())

	cfg.TestRatio = 0.6
	cfg.BalanceMethod = "none"
	warnings := cfg.Warnings()
	assert.Len(t, warnings, 2)
}
