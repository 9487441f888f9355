package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mrzor/rtos-trace/internal/attributes"
	"github.com/mrzor/rtos-trace/internal/config"
	"github.com/mrzor/rtos-trace/internal/filter"
	"github.com/mrzor/rtos-trace/internal/otel"
	"github.com/mrzor/rtos-trace/internal/output"
	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/schedule"
	"github.com/mrzor/rtos-trace/internal/storage"
	"github.com/mrzor/rtos-trace/internal/tasknames"
	"github.com/mrzor/rtos-trace/internal/timesync"
)

func newScheduleCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Reconstruct the task schedule of a stored session",
		Long: `Reconstruct busy intervals and markers per task from stored events.

Events come from the events CSV, or from a SQLite session with --sqlite and
--session (the latest session when --session is empty). With --input the
device stream itself is decoded, as extract does, and nothing is stored.
--filter keeps only events matching an expression, for example
'task_id != 1073413512'.

With --otel the schedule is also exported as OpenTelemetry spans to the
endpoint named by the standard OTEL_EXPORTER_OTLP_* variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			return runSchedule(cmd.Context(), a.cfg, a.logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringP("input", "i", "", "decode this device stream instead of stored events: file, serial device, or - for stdin")
	cmd.Flags().String("protocol", protocol.VersionCurrent.String(), "protocol revision of --input: current, legacy or auto")
	cmd.Flags().Int("retries", 0, "transient read failures tolerated per byte of --input (0 = unlimited)")
	cmd.Flags().Duration("backoff", 0, "pause between read retries")
	cmd.Flags().String("events", config.DefaultEventsPath, "events CSV to read")
	cmd.Flags().String("names", config.DefaultNamesPath, "task name mapping CSV to read (optional)")
	cmd.Flags().String("sqlite", "", "read from this SQLite database instead of CSV")
	cmd.Flags().String("session", "", "session id in the SQLite database")
	cmd.Flags().String("filter", "", "keep only events matching this expression")
	cmd.Flags().String("format", "text", "output format: text or json")
	cmd.Flags().Bool("otel", false, "export the schedule as OpenTelemetry spans")
	cmd.Flags().Uint32("tick-rate", timesync.DefaultTickRate, "kernel tick rate in Hz (configTICK_RATE_HZ)")
	cmd.Flags().StringP("trace-id", "t", "", "trace ID expression over the session")
	cmd.Flags().StringP("parent-id", "p", "", "parent span ID expression over the session")
	cmd.Flags().StringArrayVarP(&a.attributes, "attribute", "a", nil, "custom task span attribute as name=expression (repeatable)")
	return cmd
}

// loaded is a session read back from storage.
type loaded struct {
	events []protocol.Event
	names  *tasknames.Table
	trace  output.Trace
}

func runSchedule(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdin io.Reader, stdout io.Writer) error {
	src, err := load(ctx, cfg, logger, stdin)
	if err != nil {
		return err
	}

	f, err := filter.Compile(cfg.Filter)
	if err != nil {
		return err
	}
	events, err := f.Apply(src.events)
	if err != nil {
		return err
	}
	if f.String() != "" {
		logger.Debug("Filtered events", zap.String("filter", f.String()), zap.Int("kept", len(events)), zap.Int("total", len(src.events)))
	}

	s := schedule.Reconstruct(events)
	s.ApplyNames(src.names)
	src.trace.Schedule = s

	var exporter output.Exporter
	switch cfg.Format {
	case "json":
		exporter = output.NewJSONFormatter(stdout, true)
	default:
		exporter = output.NewTextFormatter(stdout)
	}
	if err := exporter.Export(ctx, &src.trace); err != nil {
		return err
	}

	if cfg.OTEL {
		return exportOTEL(ctx, cfg, logger, &src.trace)
	}
	return nil
}

// load decodes the device stream when an input is configured. Otherwise it
// reads events and names from SQLite when configured, CSV otherwise.
func load(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdin io.Reader) (*loaded, error) {
	if cfg.Input != "" {
		return loadLive(ctx, cfg, logger, stdin)
	}
	if cfg.SQLitePath != "" {
		return loadSQLite(cfg)
	}

	f, err := os.Open(cfg.EventsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open events: %w", err)
	}
	defer f.Close()

	events, skipped, err := storage.ReadEventsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.EventsPath, err)
	}
	if skipped > 0 {
		logger.Warn("Skipped unreadable event rows", zap.String("path", cfg.EventsPath), zap.Int("rows", skipped))
	}

	names := tasknames.New()
	if nf, err := os.Open(cfg.NamesPath); err == nil {
		names, err = storage.ReadNamesCSV(nf)
		_ = nf.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", cfg.NamesPath, err)
		}
	} else {
		logger.Debug("No task name mapping", zap.String("path", cfg.NamesPath), zap.Error(err))
	}

	return &loaded{
		events: events,
		names:  names,
		trace:  output.Trace{Source: cfg.EventsPath},
	}, nil
}

// loadLive decodes one session from the device stream. An unreadable finish
// flag ends the session like a missing one: the events so far are kept and
// the trace is marked unterminated.
func loadLive(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdin io.Reader) (*loaded, error) {
	input, source, closeInput, err := openInput(cfg.Input, stdin)
	if err != nil {
		return nil, err
	}
	defer closeInput()

	sess := newDeviceSession(cfg, logger, input)
	events, err := sess.Collect(ctx)
	if err != nil && !errors.Is(err, protocol.ErrExitCodeParse) {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}

	tr := output.Trace{Source: source}
	if code, err := sess.ExitCode(); err == nil {
		tr.ExitCode = &code
	} else {
		tr.Unterminated = true
		logger.Warn("Session did not finish", zap.String("source", source), zap.Error(err))
	}
	return &loaded{events: events, names: sess.Names(), trace: tr}, nil
}

func loadSQLite(cfg *config.Config) (*loaded, error) {
	store, err := storage.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	sessions, err := store.Sessions()
	if err != nil {
		return nil, err
	}
	info, err := pickSession(sessions, cfg.Session)
	if err != nil {
		return nil, err
	}

	events, err := store.LoadEvents(info.ID)
	if err != nil {
		return nil, err
	}
	names, err := store.LoadNames(info.ID)
	if err != nil {
		return nil, err
	}

	tr := output.Trace{SessionID: info.ID, Source: info.Source}
	if info.ExitCode.Valid {
		code := info.ExitCode.Int32
		tr.ExitCode = &code
	} else {
		tr.Unterminated = true
	}
	return &loaded{events: events, names: names, trace: tr}, nil
}

// pickSession returns the session with id, or the latest one when id is empty.
func pickSession(sessions []storage.SessionInfo, id string) (storage.SessionInfo, error) {
	if len(sessions) == 0 {
		return storage.SessionInfo{}, fmt.Errorf("no sessions stored")
	}
	if id == "" {
		latest := sessions[0]
		for _, s := range sessions[1:] {
			if s.StartedAt.After(latest.StartedAt) {
				latest = s
			}
		}
		return latest, nil
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return storage.SessionInfo{}, fmt.Errorf("%w: %s", storage.ErrUnknownSession, id)
}

// exportOTEL ships the schedule as spans. The tick clock is anchored so the
// last tick lands at the time of export.
func exportOTEL(ctx context.Context, cfg *config.Config, logger *zap.Logger, tr *output.Trace) error {
	sessionEnv := &attributes.SessionEnv{
		ID:       tr.SessionID,
		Source:   tr.Source,
		Finished: tr.ExitCode != nil,
		Env:      output.HostEnv(),
	}
	if tr.ExitCode != nil {
		sessionEnv.ExitCode = *tr.ExitCode
	}

	traceIDs, err := attributes.NewTraceIDEvaluator(cfg.TraceID)
	if err != nil {
		return err
	}
	traceID, traceWarnings, err := traceIDs.EvaluateAndValidate(sessionEnv)
	if err != nil {
		return err
	}

	parentIDs, err := attributes.NewParentIDEvaluator(cfg.ParentID)
	if err != nil {
		return err
	}
	parentID, parentWarnings, err := parentIDs.EvaluateAndValidate(sessionEnv)
	if err != nil {
		return err
	}

	// A remote parent needs a trace to belong to.
	if parentID.IsValid() && !traceID.IsValid() {
		if _, err := rand.Read(traceID[:]); err != nil {
			return fmt.Errorf("failed to generate trace ID: %w", err)
		}
	}

	evaluator, err := attributes.NewEvaluator(cfg.CustomAttributes, logger)
	if err != nil {
		return err
	}

	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return err
	}
	tp, err := otel.InitProvider(otelCfg,
		otel.WithLogger(logger),
		otel.WithTraceID(traceID),
		otel.WithVersion(version))
	if err != nil {
		return err
	}
	defer onExit(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			logger.Error("Error shutting down OTEL provider", zap.Error(err))
		}
	})()

	clock, err := timesync.NewConverter(anchor(tr.Schedule, cfg.TickRate), cfg.TickRate)
	if err != nil {
		return err
	}

	var rootAttrs []attribute.KeyValue
	rootAttrs = append(rootAttrs, traceWarnings...)
	rootAttrs = append(rootAttrs, parentWarnings...)

	opts := []output.OTELOption{
		output.WithAttributeEvaluator(evaluator),
		output.WithRootAttributes(rootAttrs...),
		output.WithHostEnv(sessionEnv.Env),
		output.WithOTELLogger(logger),
	}
	if parentID.IsValid() {
		opts = append(opts, output.WithParentSpan(trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     parentID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})))
	}

	formatter := output.NewOTELFormatter(tp.Tracer("rtos-trace"), clock, opts...)
	if err := formatter.Export(ctx, tr); err != nil {
		return err
	}
	logger.Info("Exported spans", zap.Int("tasks", len(tr.Schedule.TaskOrder)))
	return nil
}

// anchor returns the wall time of tick 0 such that the last tick of s maps
// to now.
func anchor(s *schedule.Schedule, rateHz uint32) time.Time {
	now := time.Now()
	_, last, ok := s.Span()
	if !ok || rateHz == 0 {
		return now
	}
	return now.Add(-time.Duration(last) * time.Second / time.Duration(rateHz))
}
