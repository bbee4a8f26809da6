package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/scriptbox/config"
	"github.com/isdmx/scriptbox/executor"
	"github.com/isdmx/scriptbox/logger"
)

// errScriptFailed is returned after a failed outcome has been rendered.
var errScriptFailed = errors.New("script failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scriptctl",
		Short: "Run scripts in the scriptbox sandbox",
		Long: `scriptctl - evaluate untrusted scripts under resource limits.

Every execution runs in a fresh session bounded by operation, time, string,
array and memory limits. Scripts have no access to the filesystem, network
or process unless a host function exposes it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (default: ./config.yaml or ./config/config.yaml)")
	flags.StringP("format", "o", "text", "Output format: text, json, yaml")
	flags.Bool("verbose", false, "Log executor activity to stderr")
	flags.Bool("kv", false, "Enable the key-value host functions")
	flags.Uint64("max-operations", 0, "Override the operation limit")
	flags.Duration("max-duration", 0, "Override the wall-clock limit")
	flags.Int("max-string-len", 0, "Override the string length limit")
	flags.Int("max-array-size", 0, "Override the array size limit")
	flags.Int64("memory-limit", 0, "Override the memory limit in bytes")

	root.AddCommand(newRunCmd(), newCallCmd(), newReplCmd())
	return root
}

// loadConfig reads the configuration and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	var (
		cfg *config.Config
		err error
	)
	if path, _ := flags.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.New()
	}
	if err != nil {
		return nil, err
	}

	if flags.Changed("max-operations") {
		cfg.Limits.MaxOperations, _ = flags.GetUint64("max-operations")
	}
	if flags.Changed("max-duration") {
		cfg.Limits.MaxDuration, _ = flags.GetDuration("max-duration")
	}
	if flags.Changed("max-string-len") {
		cfg.Limits.MaxStringLen, _ = flags.GetInt("max-string-len")
	}
	if flags.Changed("max-array-size") {
		cfg.Limits.MaxArraySize, _ = flags.GetInt("max-array-size")
	}
	if flags.Changed("memory-limit") {
		cfg.Limits.MemoryLimitBytes, _ = flags.GetInt64("memory-limit")
	}
	if flags.Changed("kv") {
		cfg.HostFunctions.KV.Enabled, _ = flags.GetBool("kv")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newExecutor builds an executor for one invocation.
func newExecutor(cmd *cobra.Command) (*executor.Executor, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	log, err := logger.New("development", level, zap.WithCaller(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return executor.NewFromConfig(cfg, log)
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case formatText, formatJSON, formatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid format: %s (must be one of text, json, yaml)", format)
	}
}
