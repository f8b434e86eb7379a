// Command btcore is the process entrypoint: it loads configuration,
// wires the ambient observability stack, builds an empty graph runtime,
// and (when a viewer URL is configured) runs live-session discovery.
// It does not itself decode CTF traces: that requires a parsed TSDL
// metadata definition, which this module does not implement (see
// DESIGN.md's "TSDL parser" Open Question decision) — an embedding
// program supplies a resolved *ctfiter.Trace once metadata has been
// drained, then builds the per-stream/muxer/trimmer/sink pipeline the
// same way cmd/btcore wires its query and live-session components here.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ssw-trace-core/internal/bretry"
	"ssw-trace-core/internal/config"
	"ssw-trace-core/internal/graph"
	"ssw-trace-core/internal/livemedium"
	"ssw-trace-core/internal/livesession"
	"ssw-trace-core/internal/obs"
	"ssw-trace-core/internal/obs/httpserver"
	"ssw-trace-core/internal/obs/resource"
	"ssw-trace-core/internal/query"
	"ssw-trace-core/internal/support"
	"ssw-trace-core/internal/value"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if env := os.Getenv("BT_CONFIG_FILE"); env != "" {
			configFile = env
		}
	}

	logger := logrus.New()

	cfg, err := config.LoadConfig(configFile, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	configureLogger(logger, cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("btcore exited with an error")
		os.Exit(1)
	}
}

func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	tracer, err := obs.New(cfg.Obs.Tracing, cfg.App.Name, cfg.App.Version, logger)
	if err != nil {
		return fmt.Errorf("btcore: failed to initialize tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	sampler := resource.NewSampler(cfg.Obs.Resource.SampleInterval, logger)
	if cfg.Obs.Resource.Enabled {
		go sampler.Run(ctx)
	}

	g := graph.New(time.Duration(cfg.Graph.RetryDurationUs) * time.Microsecond)

	if cfg.Obs.HTTPServer.Enabled {
		mux := httpserver.New(g)
		srv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Obs.HTTPServer.Host, cfg.Obs.HTTPServer.Port), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Warn("debug/metrics http server stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	queryBackoff := bretry.NewBackoff(time.Duration(cfg.Graph.RetryDurationUs) * time.Microsecond)
	executor := query.New(g.Interrupter(), queryBackoff)
	supportClass := support.New(nil)
	for _, dir := range cfg.Medium.WatchDirectories {
		params := value.Map()
		params.Insert("path", value.String(dir))
		params.Freeze()
		score, err := executor.Query(supportClass, "babeltrace.support-info", params)
		if err != nil {
			logger.WithError(err).WithField("directory", dir).Warn("support-info query failed")
			continue
		}
		logger.WithFields(logrus.Fields{"directory": dir, "score": score.AsF64()}).Info("support-info score")
	}

	if cfg.Live.ViewerURL != "" {
		if err := runLiveDiscovery(ctx, cfg, logger, g); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return nil
}

func runLiveDiscovery(ctx context.Context, cfg *config.Config, logger *logrus.Logger, g *graph.Graph) error {
	// The viewer-protocol client is not itself a graph.Sink (it doesn't
	// drive its own Run() rotation; livesession.Manager polls it), so it
	// has no Init/Finalize path through the graph and closes with an
	// ordinary defer. Sinks registered via Graph.SetSink get a
	// graph-driven teardown instead — see internal/kafkasink.Sink.Finalize.
	client, err := livemedium.Dial(cfg.Live.ViewerURL)
	if err != nil {
		return fmt.Errorf("btcore: failed to dial live viewer: %w", err)
	}
	defer client.Close()

	policy := livesession.PolicyContinue
	switch cfg.Live.ZeroSessionsPolicy {
	case "fail":
		policy = livesession.PolicyFail
	case "end":
		policy = livesession.PolicyEnd
	}

	liveBackoff := bretry.NewBackoff(time.Duration(cfg.Live.RetryDurationUs) * time.Microsecond)
	mgr := livesession.NewManager(client, policy, liveBackoff, g.Interrupter())
	if err := mgr.Discover(); err != nil {
		return err
	}
	for id := range mgr.Sessions() {
		if err := mgr.Attach(id); err != nil {
			logger.WithError(err).WithField("session_id", id).Warn("failed to attach live session")
			continue
		}
	}
	return nil
}
