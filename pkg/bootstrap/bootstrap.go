// Package bootstrap assembles a graph registry from configuration: logger,
// metrics backend, schema, patch journal and seed records.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"graphstore/pkg/config"
	"graphstore/pkg/graph"
	"graphstore/pkg/observability"
	"graphstore/pkg/schema"
)

// Runtime is an assembled registry together with the components wired into
// it. Close flushes spans and releases what Open acquired.
type Runtime struct {
	Registry *graph.Registry
	Logger   *slog.Logger
	Level    *slog.LevelVar
	Metrics  graph.MetricsRecorder
	Journal  *observability.Journal
	Tracing  *sdktrace.TracerProvider
	Config   config.Config

	closers []io.Closer
}

// Option customises Open.
type Option func(*options)

type options struct {
	logWriter  io.Writer
	registerer prometheus.Registerer
	seed       []map[string]any
}

// WithLogWriter sends log output to w instead of stderr.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) { o.logWriter = w }
}

// WithPrometheusRegisterer registers Prometheus collectors with reg instead of
// the default registerer.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSeed adds records to the registry before Open returns.
func WithSeed(seed []map[string]any) Option {
	return func(o *options) { o.seed = seed }
}

// Open builds a runtime from cfg. On error every resource opened so far is
// released.
func Open(cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logWriter: os.Stderr, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{Level: new(slog.LevelVar), Config: cfg}
	rt.Level.Set(observability.ParseLevel(cfg.Log.Level))
	rt.Logger = observability.NewLogger(rt.Level, cfg.Log.Format, o.logWriter)

	// The schema is built first so a bad schema leaves no collectors behind.
	s, err := loadSchema(cfg)
	if err != nil {
		return nil, err
	}
	metrics, err := newMetrics(cfg.Metrics, o.registerer)
	if err != nil {
		return nil, err
	}
	if c, ok := metrics.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	if cfg.Tracing.Enabled {
		tp, err := rt.newTraceProvider(cfg.Tracing, o.logWriter)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Tracing = tp
		metrics = observability.Fanout(metrics, observability.NewTracingRecorder(tp))
	}
	rt.Metrics = metrics

	regOpts := []graph.Option{graph.WithLogger(rt.Logger), graph.WithMetrics(rt.Metrics)}
	if cfg.Journal.Path != "" {
		f, err := os.OpenFile(cfg.Journal.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from configuration
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("open journal %s: %w", cfg.Journal.Path, err)
		}
		rt.closers = append(rt.closers, f)
		rt.Journal = observability.NewJournal(f)
		regOpts = append(regOpts, graph.WithPatchHook(rt.Journal.Record), graph.WithAddHook(rt.Journal.RecordCreate))
	}

	reg, err := graph.NewRegistry(s, o.seed, regOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Registry = reg
	rt.Logger.Info("graphstore runtime ready",
		"types", len(s.Types()),
		"records", reg.Len(),
		"metrics", cfg.Metrics.Backend,
		"tracing", cfg.Tracing.Enabled,
		"journal", cfg.Journal.Path != "")
	return rt, nil
}

func newMetrics(cfg config.MetricsConfig, reg prometheus.Registerer) (graph.MetricsRecorder, error) {
	switch cfg.Backend {
	case "prometheus":
		rec, err := observability.NewPrometheusRecorder(reg, cfg.Namespace)
		if err != nil {
			return nil, fmt.Errorf("prometheus metrics: %w", err)
		}
		return rec, nil
	case "expvar":
		return observability.NewExpvarRecorder(cfg.ExpvarName), nil
	default:
		return nil, nil
	}
}

func (rt *Runtime) newTraceProvider(cfg config.TracingConfig, stderr io.Writer) (*sdktrace.TracerProvider, error) {
	var w io.Writer
	switch cfg.Exporter {
	case "stderr":
		w = stderr
	case "file":
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from configuration
		if err != nil {
			return nil, fmt.Errorf("open trace file %s: %w", cfg.FilePath, err)
		}
		rt.closers = append(rt.closers, f)
		w = f
	}
	return observability.NewTraceProvider(observability.TraceOptions{
		ServiceName: cfg.ServiceName,
		SampleRate:  cfg.SampleRate,
		Writer:      w,
	})
}

func loadSchema(cfg config.Config) (*graph.Schema, error) {
	doc := schema.Document{}
	if cfg.Schema.Path != "" {
		var err error
		doc, err = schema.LoadFile(cfg.Schema.Path)
		if err != nil {
			return nil, err
		}
	}
	if doc.TypeAttribute == "" {
		doc.TypeAttribute = cfg.Schema.TypeAttribute
	}
	s, err := doc.Build(cfg.IDs.Generator)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return s, nil
}

// Reload applies the reloadable parts of cfg. Only the log level changes on a
// live runtime; other settings need a new Open.
func (rt *Runtime) Reload(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	prev := rt.Level.Level()
	rt.Level.Set(observability.ParseLevel(cfg.Log.Level))
	if prev != rt.Level.Level() {
		rt.Logger.Info("log level changed", "from", prev.String(), "to", rt.Level.Level().String())
	}
	rt.Config = cfg
	return nil
}

// WatchConfig reloads path whenever it changes until ctx is done. Load errors
// are logged and the previous configuration stays in effect.
func (rt *Runtime) WatchConfig(ctx context.Context, path string) error {
	w, err := config.NewWatcher(path, rt.Config.Watch.Debounce)
	if err != nil {
		return err
	}
	onChange, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			rt.Logger.Warn("config watcher error", "path", path, "error", err)
		case <-onChange:
			cfg, err := config.Load(path)
			if err != nil {
				rt.Logger.Warn("config reload failed", "path", path, "error", err)
				continue
			}
			if err := rt.Reload(cfg); err != nil {
				rt.Logger.Warn("config reload rejected", "path", path, "error", err)
			}
		}
	}
}

// Close flushes pending spans and releases the open files and Prometheus
// collectors. A journal encode error seen earlier is reported alongside any
// close error.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Tracing != nil {
		if err := rt.Tracing.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		rt.Tracing = nil
	}
	if rt.Journal != nil {
		if err := rt.Journal.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
