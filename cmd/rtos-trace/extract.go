package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrzor/rtos-trace/internal/config"
	"github.com/mrzor/rtos-trace/internal/linereader"
	"github.com/mrzor/rtos-trace/internal/metrics"
	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/session"
	"github.com/mrzor/rtos-trace/internal/storage"
)

func newExtractCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Decode a device stream into CSV files and an optional SQLite store",
		Long: `Decode a device stream until the device prints its finish flag.

Events go to the events CSV and task names to the mapping CSV, the layout the
schedule viewer reads. With --sqlite the session is also stored in a SQLite
database. The command exits with the device's exit code, 2 when the input
ended without a finish flag, and 3 when the finish flag was unreadable.

Examples:
  rtos-trace extract --input /dev/ttyUSB0
  idf.py monitor | rtos-trace extract --input - --sqlite trace.sqlite3
  rtos-trace extract --input capture.log --protocol legacy`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExtract(ctx, a.cfg, a.logger, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringP("input", "i", "-", "device stream: file, serial device, or - for stdin")
	cmd.Flags().String("events", config.DefaultEventsPath, "events CSV output path")
	cmd.Flags().String("names", config.DefaultNamesPath, "task name mapping CSV output path")
	cmd.Flags().String("sqlite", "", "also store the session in this SQLite database")
	cmd.Flags().String("protocol", protocol.VersionCurrent.String(), "protocol revision: current, legacy or auto")
	cmd.Flags().Int("retries", 0, "transient read failures tolerated per byte (0 = unlimited)")
	cmd.Flags().Duration("backoff", 0, "pause between read retries")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// runExtract runs one session. The returned error is an *exitError unless
// setup failed.
func runExtract(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdin io.Reader) error {
	input, source, closeInput, err := openInput(cfg.Input, stdin)
	if err != nil {
		return err
	}
	defer closeInput()

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		srv, err := metrics.Serve(cfg.MetricsAddr, collector, logger)
		if err != nil {
			return err
		}
		defer onExit(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Error shutting down metrics server", zap.Error(err))
			}
		})()
	}

	sink, sqliteWriter, closeSinks, err := openSinks(cfg, source, logger)
	if err != nil {
		return err
	}

	sess := newDeviceSession(cfg, logger, input, session.WithMetrics(collector))

	logger.Info("Reading device stream",
		zap.String("source", source),
		zap.String("protocol", cfg.ProtocolVersion().String()))

	readErr := pump(ctx, sess, sink, logger)

	if err := storage.WriteNames(sink, sess.Names()); err != nil {
		logger.Error("Failed to store task names", zap.Error(err))
	}

	code, exitErr := sess.ExitCode()
	if exitErr == nil && sqliteWriter != nil {
		if err := sqliteWriter.FinishSession(code); err != nil {
			logger.Error("Failed to record exit code", zap.Error(err))
		}
	}
	if err := closeSinks(); err != nil {
		logger.Error("Failed to close outputs", zap.Error(err))
	}

	snap := collector.Snapshot()
	logger.Info("Session summary",
		zap.Uint64("lines", snap.Lines),
		zap.Uint64("events", snap.Events),
		zap.Uint64("decode_errors", snap.DecodeErrors),
		zap.Uint64("header_rows", snap.HeaderRows),
		zap.Uint64("task_names", snap.TaskNames))

	switch {
	case exitErr == nil:
		return &exitError{code: int(code)}
	case errors.Is(exitErr, protocol.ErrExitCodeParse):
		return &exitError{code: exitFatal, err: exitErr}
	case readErr != nil:
		return &exitError{code: exitUnterminated, err: fmt.Errorf("reading %s: %w", source, readErr)}
	default:
		return &exitError{code: exitUnterminated, err: exitErr}
	}
}

// pump moves events from the session to the sink until the session ends.
// It returns the read error that stopped it, if any.
func pump(ctx context.Context, sess *session.Session, sink storage.Sink, logger *zap.Logger) error {
	for {
		ev, err := sess.Next(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrExitCodeParse) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := sink.WriteEvent(ev); err != nil {
			logger.Error("Failed to store event", zap.String("eventtype", ev.Tag), zap.Error(err))
		}
	}
}

// newDeviceSession reads input with the configured retry policy and decodes it
// with the configured protocol revision.
func newDeviceSession(cfg *config.Config, logger *zap.Logger, input io.Reader, opts ...session.Option) *session.Session {
	lines := linereader.New(linereader.NewReaderSource(input),
		linereader.WithRetryPolicy(cfg.RetryPolicy()),
		linereader.WithLogger(logger))
	opts = append([]session.Option{
		session.WithDecoder(protocol.NewDecoder(cfg.ProtocolVersion())),
		session.WithLogger(logger),
	}, opts...)
	return session.New(lines, opts...)
}

func openInput(path string, stdin io.Reader) (io.Reader, string, func(), error) {
	if path == "" || path == "-" {
		return stdin, "stdin", func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, path, func() { _ = f.Close() }, nil
}

// openSinks opens the CSV pair and, if configured, a SQLite session. The
// close func is also registered with atexit so an interrupted run still
// flushes.
func openSinks(cfg *config.Config, source string, logger *zap.Logger) (storage.Sink, *storage.SessionWriter, func() error, error) {
	csvSink, err := storage.CreateCSVSink(cfg.EventsPath, cfg.NamesPath)
	if err != nil {
		return nil, nil, nil, err
	}
	sinks := storage.MultiSink{csvSink}

	var (
		store  *storage.SQLiteStore
		writer *storage.SessionWriter
	)
	if cfg.SQLitePath != "" {
		store, err = storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			_ = csvSink.Close()
			return nil, nil, nil, err
		}
		writer, err = store.StartSession(source, cfg.ProtocolVersion().String())
		if err != nil {
			_ = csvSink.Close()
			_ = store.Close()
			return nil, nil, nil, err
		}
		sinks = append(sinks, writer)
		logger.Info("Storing session", zap.String("session_id", writer.ID()), zap.String("sqlite", cfg.SQLitePath))
	}

	var closeErr error
	closeAll := onExit(func() {
		closeErr = sinks.Close()
		if store != nil {
			closeErr = errors.Join(closeErr, store.Close())
		}
	})

	return sinks, writer, func() error {
		closeAll()
		return closeErr
	}, nil
}
