// fswatch reports file-system activity captured by the MiniFSWatcher filter
// driver to the console, OpenTelemetry, AMQP and a local journal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrzor/fswatch/internal/aggregator"
	"github.com/mrzor/fswatch/internal/channel"
	"github.com/mrzor/fswatch/internal/config"
	"github.com/mrzor/fswatch/internal/event"
	"github.com/mrzor/fswatch/internal/eventexpr"
	"github.com/mrzor/fswatch/internal/journal"
	"github.com/mrzor/fswatch/internal/logging"
	"github.com/mrzor/fswatch/internal/otel"
	"github.com/mrzor/fswatch/internal/output"
	"github.com/mrzor/fswatch/internal/pathconv"
	"github.com/mrzor/fswatch/internal/procname"
	"github.com/mrzor/fswatch/internal/publish"
	"github.com/mrzor/fswatch/internal/timesync"
	"github.com/mrzor/fswatch/internal/watcher"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type cli struct {
	Config        string           `help:"Configuration file (.toml, .yaml or .yml), reloaded on change" short:"c" type:"path" env:"FSWATCH_CONFIG"`
	Backend       string           `help:"Driver channel: fltport or bpf"`
	NoAggregate   bool             `help:"Deliver create and change events immediately instead of at close"`
	ExcludeSelf   bool             `help:"Ignore file-system activity of fswatch itself"`
	LogLevel      string           `help:"Log level: debug, info, warn or error"`
	LogFormat     string           `help:"Log format: text or json"`
	MetricsListen string           `help:"Serve Prometheus metrics on this address"`
	Journal       string           `help:"Record delivered events in this SQLite database" type:"path"`
	Paths         []string         `arg:"" optional:"" help:"Paths to watch. A path without wildcards covers everything below it"`
	Version       kong.VersionFlag `help:"Show version and exit"`
}

// apply lets command-line flags override the file and environment.
func (c *cli) apply(cfg *config.Config) {
	if c.Backend != "" {
		cfg.Backend = c.Backend
	}
	if c.NoAggregate {
		cfg.Watch.Aggregate = false
	}
	if c.ExcludeSelf {
		cfg.Watch.ExcludeSelf = true
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Log.Format = c.LogFormat
	}
	if c.MetricsListen != "" {
		cfg.Metrics.Listen = c.MetricsListen
	}
	if c.Journal != "" {
		cfg.Journal.Path = c.Journal
	}
	if len(c.Paths) > 0 {
		cfg.Watch.Paths = c.Paths
	}
}

func (c *cli) load() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	var params cli
	kong.Parse(&params,
		kong.Name("fswatch"),
		kong.Description("Report file-system activity captured by the MiniFSWatcher filter driver."),
		kong.Vars{"version": fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)},
	)

	if err := run(&params); err != nil {
		slog.Error("fswatch failed", "error", err)
		os.Exit(1)
	}
}

func run(params *cli) error {
	cfg, err := params.load()
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting fswatch", "version", version, "commit", commit, "built", date, "backend", cfg.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, translator, stamper, err := openChannel(cfg)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := setupSinks(cfg, stamper, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	scope, err := newPathScope(cfg.Watch.Paths)
	if err != nil {
		return err
	}
	var current atomic.Pointer[pathScope]
	current.Store(scope)

	w, err := setupWatcher(cfg, ch, translator, &current, logger)
	if err != nil {
		return err
	}
	w.SetHandlers(output.Handlers(logging.WithComponent(logger, "output"), sinks...))

	if err := w.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := w.Disconnect(); err != nil && !errors.Is(err, channel.ErrNotConnected) {
			logger.Warn("disconnecting from driver", "error", err)
		}
	}()

	if err := applyFilters(w, cfg, scope); err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("stopping metrics server", "error", err)
			}
		}()
	}

	if params.Config != "" {
		r := &reloader{w: w, scope: &current, process: processFilterOf(cfg), logger: logger}
		go func() {
			err := config.Watch(ctx, params.Config, func(next *config.Config) {
				params.apply(next)
				r.apply(next)
			}, func(err error) {
				logger.Warn("config reload failed", "error", err)
			})
			if err != nil {
				logger.Warn("config hot reload disabled", "error", err)
			}
		}()
	}

	logger.Info("watching", "paths", scope.paths, "aggregate", w.AggregateEvents())

	select {
	case <-ctx.Done():
		logger.Info("received signal, stopping")
		return nil
	case <-w.Done():
		if err := w.Err(); err != nil {
			return err
		}
		return nil
	}
}

func setupWatcher(
	cfg *config.Config,
	ch channel.Channel,
	translator pathconv.Translator,
	scope *atomic.Pointer[pathScope],
	logger *slog.Logger,
) (*watcher.Watcher, error) {
	filter, err := eventexpr.NewFilter(cfg.Aggregator.Filter)
	if err != nil {
		return nil, err
	}

	w, err := watcher.New(ch, watcher.Options{
		BufferSize: cfg.Watch.BufferSize,
		IdleDelay:  cfg.Watch.IdleDelay,
		Translator: translator,
		Aggregator: aggregator.Options{
			MaxPostponed:   cfg.Aggregator.MaxPostponed,
			MaxAge:         cfg.Aggregator.MaxAge,
			TrashPrefixes:  cfg.Aggregator.TrashPrefixes,
			IgnorePatterns: cfg.Aggregator.Ignore,
			Filter:         deliverFilter(scope, filter, logger),
			Logger:         logging.WithComponent(logger, "aggregator"),
		},
		OnError: func(err error) {
			logger.Error("watcher stopped", "error", err)
		},
		Logger: logging.WithComponent(logger, "watcher"),
	})
	if err != nil {
		return nil, err
	}
	w.SetAggregateEvents(cfg.Watch.Aggregate)
	return w, nil
}

// deliverFilter combines the watched path scope with the filter expression.
// An expression that fails at run time drops the event.
func deliverFilter(scope *atomic.Pointer[pathScope], filter *eventexpr.Filter, logger *slog.Logger) func(event.Event) bool {
	return func(ev event.Event) bool {
		if !scope.Load().Match(ev) {
			return false
		}
		ok, err := filter.Match(ev)
		if err != nil {
			logger.Warn("filter expression failed", "event", ev.String(), "error", err)
			return false
		}
		return ok
	}
}

// filterTarget is the part of the watcher the driver-side filters use.
type filterTarget interface {
	WatchProcess(pid int64) error
	NotWatchProcess(pid int64) error
	RemoveProcessFilter() error
	WatchPath(pattern string) error
}

// processFilter is the driver's single process filter as configured: a
// positive id includes, a negative one excludes, zero means none.
type processFilter int64

func processFilterOf(cfg *config.Config) processFilter {
	switch {
	case cfg.Watch.Process != 0:
		return processFilter(cfg.Watch.Process)
	case cfg.Watch.ExcludeSelf:
		return processFilter(-watcher.CurrentProcessID())
	default:
		return 0
	}
}

func (p processFilter) send(w filterTarget) error {
	switch {
	case p > 0:
		return w.WatchProcess(int64(p))
	case p < 0:
		return w.NotWatchProcess(-int64(p))
	default:
		return w.RemoveProcessFilter()
	}
}

func applyFilters(w filterTarget, cfg *config.Config, scope *pathScope) error {
	if p := processFilterOf(cfg); p != 0 {
		if err := p.send(w); err != nil {
			return fmt.Errorf("setting process filter: %w", err)
		}
	}

	if len(scope.paths) > 0 {
		if err := w.WatchPath(scope.driverPattern()); err != nil {
			return fmt.Errorf("setting path filter: %w", err)
		}
	}
	return nil
}

type reloadTarget interface {
	filterTarget
	SetAggregateEvents(on bool)
}

// reloader applies the settings that can change while the watcher runs.
// Reloads arrive one at a time from the config watcher.
type reloader struct {
	w       reloadTarget
	scope   *atomic.Pointer[pathScope]
	process processFilter
	logger  *slog.Logger
}

func (r *reloader) apply(cfg *config.Config) {
	r.w.SetAggregateEvents(cfg.Watch.Aggregate)

	if p := processFilterOf(cfg); p != r.process {
		if err := p.send(r.w); err != nil {
			r.logger.Warn("updating process filter", "error", err)
		} else {
			r.process = p
			r.logger.Info("process filter changed", "process", int64(p))
		}
	}

	next, err := newPathScope(cfg.Watch.Paths)
	if err != nil {
		r.logger.Warn("ignoring reloaded paths", "error", err)
		return
	}
	if next.equal(r.scope.Load()) {
		return
	}
	if err := r.w.WatchPath(next.driverPattern()); err != nil {
		r.logger.Warn("updating path filter", "error", err)
		return
	}
	r.scope.Store(next)
	r.logger.Info("watch paths changed", "paths", next.paths)
}

// setupSinks builds the configured outputs and returns a function closing
// them.
func setupSinks(cfg *config.Config, stamper timesync.Stamper, logger *slog.Logger) ([]output.Sink, func(), error) {
	var (
		sinks   []output.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Output.Console {
		sinks = append(sinks, output.NewConsoleSink(os.Stdout, procname.New(0, 0)))
	}

	if cfg.Output.OTEL {
		formatter, cleanup, err := setupOTEL(cfg, stamper, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, formatter)
		closers = append(closers, cleanup)
	}

	if cfg.AMQP.URL != "" {
		p, err := publish.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, logging.WithComponent(logger, "amqp"))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, p)
		closers = append(closers, func() {
			if err := p.Close(); err != nil {
				logger.Warn("closing AMQP publisher", "error", err)
			}
		})
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, j)
		closers = append(closers, func() {
			if err := j.Close(); err != nil {
				logger.Warn("closing journal", "error", err)
			}
		})
	}

	if len(sinks) == 0 {
		logger.Warn("no output configured, events are only counted")
	}
	return sinks, closeAll, nil
}

// setupOTEL initializes the OTEL provider and returns the span sink and a
// cleanup function.
func setupOTEL(cfg *config.Config, stamper timesync.Stamper, logger *slog.Logger) (*output.OTELFormatter, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	evaluator, err := eventexpr.NewEvaluator(cfg.Output.Attributes)
	if err != nil {
		return nil, nil, err
	}
	traceIDs, err := eventexpr.NewTraceIDEvaluator(cfg.Output.TraceID)
	if err != nil {
		return nil, nil, err
	}

	versionInfo := fmt.Sprintf("%s (%s)", version, commit)
	tp, err := otel.InitProvider(otelCfg, versionInfo, logging.WithComponent(logger, "otel"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(tp, shutdownCtx); err != nil {
			logger.Warn("shutting down OTEL provider", "error", err)
		}
	}

	return output.NewOTELFormatter(tp.Tracer(otel.TracerName), stamper, evaluator, traceIDs, logger), cleanup, nil
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "listen", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
