package cmd

import (
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

func TestConfigConstants(t *testing.T) {
	assert.Equal(t, "lbcmut", configBaseName)
	assert.Equal(t, "lbcmut.yaml", configFileName)
	assert.Equal(t, ".", configFolderPath)
	assert.Equal(t, "output", outputFlagName)
	assert.Equal(t, ".lbcmut", defaultOutputDir)
	assert.Equal(t, "LBCMUT", envPrefix)
}

func TestConfigVersionConstants(t *testing.T) {
	assert.Equal(t, "version", configVersionKey)
	assert.Equal(t, 1, currentConfigVersion)
}

// setConfig overrides key for the duration of the test.
func setConfig(t *testing.T, key string, value any) {
	t.Helper()

	previous := viper.Get(key)
	viper.Set(key, value)
	t.Cleanup(func() { viper.Set(key, previous) })
}

func TestSearchConfig_Defaults(t *testing.T) {
	cfg, err := searchConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 5, cfg.LoopCount)
	assert.InDelta(t, 0.08, cfg.Beta, 1e-12)
	assert.InDelta(t, 0.2, cfg.ProbLow, 1e-12)
	assert.InDelta(t, 0.8, cfg.ProbHigh, 1e-12)
	assert.InDelta(t, 0.05, cfg.Epsilon, 1e-12)
	assert.Equal(t, m.Operators, cfg.Operators)
	assert.Equal(t, 1000, cfg.MaxSkips)
	assert.Equal(t, 3, cfg.MaxOracleFailures)
	assert.NotZero(t, cfg.RandomSeed, "a zero seed is replaced")
}

func TestSearchConfig_Overrides(t *testing.T) {
	setConfig(t, randomSeedKey, 99)
	setConfig(t, operatorsKey, []string{"return", "Return", "goto", "remove"})

	cfg, err := searchConfig()
	require.NoError(t, err)

	assert.Equal(t, uint64(99), cfg.RandomSeed)
	assert.Equal(t, []m.Operator{m.OperatorReturn, m.OperatorReturn, m.OperatorGoto, m.OperatorRemove}, cfg.Operators)
}

func TestSearchConfig_Invalid(t *testing.T) {
	t.Run("unknown operator", func(t *testing.T) {
		setConfig(t, operatorsKey, []string{"goto", "jump"})

		_, err := searchConfig()
		assert.ErrorContains(t, err, "jump")
	})

	t.Run("epsilon out of range", func(t *testing.T) {
		setConfig(t, epsilonKey, 1.5)

		_, err := searchConfig()
		assert.ErrorContains(t, err, "epsilon")
	})
}

func TestNewOracle(t *testing.T) {
	t.Run("modes are wrapped in the cache", func(t *testing.T) {
		for _, mode := range []string{oracleModeProcess, oracleModeAgent, "VM"} {
			oracle, err := newOracle(mode)
			require.NoError(t, err, mode)
			assert.IsType(t, &adapter.CachingOracle{}, oracle, mode)
		}
	})

	t.Run("cache can be disabled", func(t *testing.T) {
		setConfig(t, oracleCacheSizeKey, 0)

		oracle, err := newOracle(oracleModeVM)
		require.NoError(t, err)
		assert.IsType(t, &adapter.VMOracle{}, oracle)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := newOracle("remote")
		assert.ErrorContains(t, err, "unknown oracle mode")
	})
}

func TestParseSlogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"-4", slog.LevelDebug},
		{"loud", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseSlogLevel(tt.value, slog.LevelInfo), tt.value)
	}
}

func TestOracleTimeout(t *testing.T) {
	setConfig(t, oracleTimeoutKey, 3)
	assert.Equal(t, "3s", oracleTimeout().String())
}
