package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
	"lbcmut.dev/pkg/lbcmut/internal/domain"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "lbcmut"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName  = "output"
	seedFlagName    = "seed"
	verboseFlagName = "verbose"
	oracleFlagName  = "oracle"

	iterationsFlagName = "iterations"
	randomSeedFlagName = "random-seed"

	seedPathKey = "seed.path"

	maxIterationsKey = "search.max_iterations"
	loopCountKey     = "search.loop_count"
	betaKey          = "search.beta"
	probLowKey       = "search.prob_low"
	probHighKey      = "search.prob_high"
	epsilonKey       = "search.epsilon"
	randomSeedKey    = "search.random_seed"
	operatorsKey     = "search.operators"
	maxSkipsKey      = "search.max_skips"
	stackMarginKey   = "search.stack_margin"

	oracleModeKey          = "oracle.mode"
	oracleTimeoutKey       = "oracle.timeout"
	oracleJavaKey          = "oracle.java"
	oracleJVMArgsKey       = "oracle.jvm_args"
	oracleClasspathKey     = "oracle.classpath"
	oracleAgentAddrKey     = "oracle.agent_addr"
	oracleMaxFailuresKey   = "oracle.max_failures"
	oracleCacheSizeKey     = "oracle.cache_size"
	oracleMaxTraceLinesKey = "oracle.max_trace_lines"
	oracleMaxStepsKey      = "oracle.max_steps"

	oracleModeProcess = "process"
	oracleModeAgent   = "agent"
	oracleModeVM      = "vm"

	defaultOutputDir         = ".lbcmut"
	defaultSeedPath          = "seed/Seed.class"
	defaultOracleMode        = oracleModeProcess
	defaultOracleTimeout     = 10 * time.Second
	defaultOracleJava        = "java"
	defaultOracleAgentAddr   = "127.0.0.1:7654"
	defaultOracleCacheSize   = 128
	defaultOracleTraceLines  = 1_000_000
	defaultOracleMaxSteps    = 10_000_000
	defaultOracleMaxFailures = 3

	envPrefix = "LBCMUT"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".lbcmut.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var defaultJVMArgs = []string{"-Xverify:none"}

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

func setDefaults() {
	search := domain.DefaultSearchConfig()

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultOutputDir)
	viper.SetDefault(seedPathKey, defaultSeedPath)

	viper.SetDefault(maxIterationsKey, search.MaxIterations)
	viper.SetDefault(loopCountKey, search.LoopCount)
	viper.SetDefault(betaKey, search.Beta)
	viper.SetDefault(probLowKey, search.ProbLow)
	viper.SetDefault(probHighKey, search.ProbHigh)
	viper.SetDefault(epsilonKey, search.Epsilon)
	viper.SetDefault(randomSeedKey, 0)
	viper.SetDefault(operatorsKey, operatorNames(search.Operators))
	viper.SetDefault(maxSkipsKey, search.MaxSkips)
	viper.SetDefault(stackMarginKey, search.StackMargin)

	viper.SetDefault(oracleModeKey, defaultOracleMode)
	viper.SetDefault(oracleTimeoutKey, int64(defaultOracleTimeout.Seconds()))
	viper.SetDefault(oracleJavaKey, defaultOracleJava)
	viper.SetDefault(oracleJVMArgsKey, defaultJVMArgs)
	viper.SetDefault(oracleClasspathKey, []string{})
	viper.SetDefault(oracleAgentAddrKey, defaultOracleAgentAddr)
	viper.SetDefault(oracleMaxFailuresKey, defaultOracleMaxFailures)
	viper.SetDefault(oracleCacheSizeKey, defaultOracleCacheSize)
	viper.SetDefault(oracleMaxTraceLinesKey, defaultOracleTraceLines)
	viper.SetDefault(oracleMaxStepsKey, defaultOracleMaxSteps)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

func operatorNames(ops []m.Operator) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = string(op)
	}

	return names
}

// searchConfig reads the search constants. A random seed of zero is replaced
// by one derived from the wall clock so the run can still be replayed from
// the manifest.
func searchConfig() (domain.SearchConfig, error) {
	cfg := domain.DefaultSearchConfig()

	cfg.MaxIterations = viper.GetInt(maxIterationsKey)
	cfg.LoopCount = viper.GetInt(loopCountKey)
	cfg.Beta = viper.GetFloat64(betaKey)
	cfg.ProbLow = viper.GetFloat64(probLowKey)
	cfg.ProbHigh = viper.GetFloat64(probHighKey)
	cfg.Epsilon = viper.GetFloat64(epsilonKey)
	cfg.RandomSeed = viper.GetUint64(randomSeedKey)
	cfg.MaxSkips = viper.GetInt(maxSkipsKey)
	cfg.StackMargin = viper.GetInt(stackMarginKey)
	cfg.MaxOracleFailures = viper.GetInt(oracleMaxFailuresKey)

	if cfg.RandomSeed == 0 {
		cfg.RandomSeed = uint64(time.Now().UnixNano())
	}

	ops := make([]m.Operator, 0, len(viper.GetStringSlice(operatorsKey)))

	for _, name := range viper.GetStringSlice(operatorsKey) {
		op, err := m.ParseOperator(name)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", operatorsKey, err)
		}

		ops = append(ops, op)
	}

	cfg.Operators = ops

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid search configuration: %w", err)
	}

	return cfg, nil
}

// oracleTimeout reads oracle.timeout in seconds.
func oracleTimeout() time.Duration {
	return time.Duration(viper.GetInt64(oracleTimeoutKey)) * time.Second
}

// newOracle builds the oracle selected by oracle.mode, wrapped in the trace
// cache.
func newOracle(mode string) (adapter.Oracle, error) {
	var oracle adapter.Oracle

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case oracleModeProcess:
		oracle = adapter.NewProcessOracle(adapter.ProcessOracleConfig{
			Java:          viper.GetString(oracleJavaKey),
			JVMArgs:       viper.GetStringSlice(oracleJVMArgsKey),
			Classpath:     viper.GetStringSlice(oracleClasspathKey),
			Timeout:       oracleTimeout(),
			MaxTraceLines: viper.GetInt(oracleMaxTraceLinesKey),
		})
	case oracleModeAgent:
		oracle = adapter.NewAgentOracle(adapter.AgentOracleConfig{
			Address:       viper.GetString(oracleAgentAddrKey),
			Classpath:     viper.GetStringSlice(oracleClasspathKey),
			Timeout:       oracleTimeout(),
			MaxTraceLines: viper.GetInt(oracleMaxTraceLinesKey),
		})
	case oracleModeVM:
		oracle = adapter.NewVMOracle(adapter.VMOracleConfig{
			MaxSteps:      viper.GetInt(oracleMaxStepsKey),
			Timeout:       oracleTimeout(),
			MaxTraceLines: viper.GetInt(oracleMaxTraceLinesKey),
		})
	default:
		return nil, fmt.Errorf("unknown oracle mode %q (want %s, %s or %s)", mode, oracleModeProcess, oracleModeAgent, oracleModeVM)
	}

	return adapter.NewCachingOracle(oracle, viper.GetInt(oracleCacheSizeKey))
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at the configured level; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
