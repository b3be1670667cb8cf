package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/caffeineduck/itkpipe/pipeline"
)

var (
	cfg    Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "itkpipe",
	Short: "Run itk-wasm pipeline modules",
	Long: `itkpipe - Run itk-wasm image, mesh and DICOM pipelines compiled to WebAssembly.

Modules are fetched from a directory or URL, compiled once and cached.
A module only sees the directories mounted explicitly with --mount; the
rest of its filesystem is a scratch area removed after every run.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// exitError carries a pipeline return code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error")
	flags.String("base-url", "", "Directory or URL modules are resolved against")
	flags.String("cache-dir", "", "Compilation cache directory (default: ~/.cache/itkpipe)")
	flags.Bool("no-cache", false, "Disable compilation cache")
	flags.String("memory", "1gb", "Memory limit per instance: 64mb, 256mb, 1gb, 2gb")
}

func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := loadConfig(path)
	if err != nil {
		return err
	}
	loaded.applyFlags(cmd)
	if err := loaded.validate(); err != nil {
		return err
	}
	cfg = loaded

	l, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = l
	pipeline.SetLogger(l)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	return zc.Build()
}
