// RTI daemon -- federated discrete-event coordination runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/lf-rti/internal/clocksync"
	"github.com/dantte-lp/lf-rti/internal/config"
	"github.com/dantte-lp/lf-rti/internal/debugapi"
	"github.com/dantte-lp/lf-rti/internal/federation"
	rtimetrics "github.com/dantte-lp/lf-rti/internal/metrics"
	"github.com/dantte-lp/lf-rti/internal/tag"
	appversion "github.com/dantte-lp/lf-rti/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	federationID := flag.String("i", "", "federation id (overrides federation.id)")
	flag.StringVar(federationID, "id", "", "federation id (overrides federation.id)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}
	if *federationID != "" {
		cfg.Federation.ID = *federationID
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("lf-rti starting",
		slog.String("version", appversion.Version),
		slog.String("federation_id", cfg.Federation.ID),
		slog.Int("number_of_federates", cfg.Federation.NumberOfFederates),
		slog.String("debug_addr", cfg.Debug.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := rtimetrics.NewCollector(reg)

	fed := federation.New(logger, cfg.Federation.ID, cfg.Federation.NumberOfFederates,
		toEdges(cfg.Federation.Edges),
		federation.WithMetrics(collector),
		federation.WithParams(toParams(cfg.Federation)),
	)

	if err := runDaemon(cfg, fed, reg, collector, logger, logLevel); err != nil {
		logger.Error("lf-rti exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("lf-rti stopped")
	return 0
}

// runDaemon wires the acceptor, clock-sync driver, metrics/debug HTTP
// servers, and systemd integration together under one errgroup with a
// signal-aware context: the first goroutine to return stops every other
// one.
func runDaemon(
	cfg *config.Config,
	fed *federation.Federation,
	reg *prometheus.Registry,
	collector *rtimetrics.Collector,
	logger *slog.Logger,
	logLevel *slog.LevelVar,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	tcpLn, err := fed.ListenTCP()
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}
	defer tcpLn.Close()
	logger.Info("federate acceptor listening", slog.String("addr", tcpLn.Addr().String()))

	tcpPort := tcpLn.Addr().(*net.TCPAddr).Port
	udpConn, err := federation.ListenUDP(tcpPort)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	defer udpConn.Close()

	g.Go(func() error {
		return fed.AcceptLoop(gCtx, tcpLn)
	})

	driver := clocksync.NewDriver(udpConn, fed, collector,
		cfg.Federation.ClockSyncT1Period, cfg.Federation.UDPTimeout, logger)
	g.Go(func() error {
		return driver.Run(gCtx)
	})

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	debugSrv := debugapi.NewServerWithLevel(cfg.Debug.Addr, fed, logLevel)
	startHTTPServers(gCtx, g, cfg, metricsSrv, debugSrv, logger)
	startDaemonGoroutines(gCtx, g, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, metricsSrv, debugSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

func toEdges(cfg []config.EdgeConfig) []federation.Edge {
	if len(cfg) == 0 {
		return nil
	}
	edges := make([]federation.Edge, len(cfg))
	for i, e := range cfg {
		edges[i] = federation.Edge{From: e.From, To: e.To, Delay: tag.Time(e.DelayNs)}
	}
	return edges
}

func toParams(cfg config.FederationConfig) federation.Params {
	return federation.Params{
		TCPTimeout:                     cfg.TCPTimeout,
		UDPTimeout:                     cfg.UDPTimeout,
		StartingPort:                   cfg.StartingPort,
		PortRangeLimit:                 cfg.PortRangeLimit,
		FedComBufferSize:               cfg.FedComBufferSize,
		ConnectNumRetries:              cfg.ConnectNumRetries,
		ConnectRetryInterval:           cfg.ConnectRetryInterval,
		ClockSyncT1Period:              cfg.ClockSyncT1Period,
		ClockSyncT4MessagesPerInterval: cfg.ClockSyncT4MessagesPerInterval,
		DelayStart:                     cfg.DelayStart,
	}
}

// startHTTPServers registers the metrics and debug HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	metricsSrv *http.Server,
	debugSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	if cfg.Debug.Addr == "" {
		return
	}
	g.Go(func() error {
		logger.Info("debug server listening", slog.String("addr", cfg.Debug.Addr))
		return listenAndServe(ctx, &lc, debugSrv, cfg.Debug.Addr)
	})
}

// startDaemonGoroutines registers the watchdog keepalive goroutine. Log
// verbosity is adjusted at runtime through POST /loglevel on the debug
// HTTP server rather than a signal, since the RTI already owns that
// listener.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})
}

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured interval. It exits immediately if no watchdog is configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tick := interval / 2
	logger.Info("systemd watchdog enabled", slog.Duration("watchdog", interval), slog.Duration("keepalive", tick))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", err.Error()))
			}
		}
	}
}

// gracefulShutdown notifies systemd then drains the HTTP servers within
// shutdownTimeout. Federate TCP sessions are left to their own deadlines:
// the acceptor's listener is closed by AcceptLoop once the context is
// canceled, and in-flight sessions are not closed here.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
