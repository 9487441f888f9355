package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"

	"github.com/mrzor/rtos-trace/internal/config"
)

// app is the state shared by subcommands.
type app struct {
	configFile string
	verbose    bool
	attributes []string

	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "rtos-trace",
		Short: "Decode FreeRTOS trace streams and rebuild task schedules",
		Long: `rtos-trace reads the text debug stream an instrumented FreeRTOS device
prints over its console, stores the decoded events, and reconstructs which
task ran when.

Every flag can also be set as RTOS_TRACE_<FLAG> in the environment or in
a YAML config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newExtractCommand(a),
		newScheduleCommand(a),
		newSessionsCommand(a),
		newVersionCommand(),
	)
	return rootCmd
}

// setup layers flags over environment over config file, then builds the
// logger. Commands call it first from RunE.
func (a *app) setup(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if a.verbose {
		v.Set("verbose", true)
	}

	cfg, err := config.Load(v, a.attributes...)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("Using config file", zap.String("path", used))
	}

	a.v, a.cfg, a.logger = v, cfg, logger
	onExit(func() { _ = logger.Sync() })
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// onExit registers fn with atexit and returns a func that runs it early.
// fn runs at most once either way.
func onExit(fn func()) func() {
	var once sync.Once
	run := func() { once.Do(fn) }
	atexit.Register(run)
	return run
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "rtos-trace %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
