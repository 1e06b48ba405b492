// Command corehttp is the daemon entrypoint: a single binary that is
// either the prefork supervisor or one of its forked workers, depending on
// whether COREHTTP_WORKER_SLOT is set in its environment (spec §4.6). The
// supervisor re-execs this same binary once per worker slot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ripta/corehttp/internal/audit"
	"github.com/ripta/corehttp/internal/config"
	"github.com/ripta/corehttp/internal/endpointadapter"
	"github.com/ripta/corehttp/internal/middleware"
	"github.com/ripta/corehttp/internal/mqadapter"
	"github.com/ripta/corehttp/internal/pipeline"
	"github.com/ripta/corehttp/internal/supervisor"
	"github.com/ripta/corehttp/internal/worker"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	if supervisor.IsForkedWorker() {
		runWorker()
		return
	}
	runSupervisor()
}

// runSupervisor loads operator-facing configuration, stands up the
// metrics endpoint and (optionally) the audit trail, then drives the
// prefork supervisor until a soft shutdown signal fully drains it.
func runSupervisor() {
	configFile := flag.String("config", "", "path to a YAML/JSON supervisor config file")
	flag.Parse()

	cfg, err := config.LoadSupervisorConfig(*configFile)
	if err != nil {
		slog.Error("failed to load supervisor configuration", "error", err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel)

	recorder := openAuditRecorder(cfg)
	if recorder != nil {
		defer recorder.Close()
	}

	go serveMetrics(cfg.MetricsAddr)

	listenAddress := cfg.ListenAddress
	if cfg.Mode == "queue" {
		listenAddress = "" // queue workers open their own transport sockets.
	}

	sup, err := supervisor.New(supervisor.Config{
		Slots:         cfg.Slots,
		Interval:      cfg.Interval,
		ListenAddress: listenAddress,
		Env:           workerEnv(cfg),
		Recorder:      recorder,
	})
	if err != nil {
		slog.Error("failed to construct supervisor", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	slog.Info("corehttp supervisor starting",
		"version", version,
		"mode", cfg.Mode,
		"slots", cfg.Slots,
		"listen", cfg.ListenAddress,
		"interval", cfg.Interval,
	)

	start := time.Now()
	if err := sup.Run(ctx); err != nil {
		slog.Error("supervisor exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("corehttp supervisor drained", "uptime", time.Since(start))
}

// workerEnv builds the COREHTTP_* environment variables passed to every
// forked worker in addition to the slot/listener/heartbeat variables the
// supervisor itself sets (spec §4.6, spec §9's worker config layer).
func workerEnv(cfg *config.SupervisorConfig) []string {
	_, port, _ := net.SplitHostPort(cfg.ListenAddress)
	return []string{
		"COREHTTP_MODE=" + cfg.Mode,
		"COREHTTP_SERVER_NAME=localhost",
		"COREHTTP_SERVER_PORT=" + port,
		"COREHTTP_LOG_LEVEL=" + cfg.LogLevel,
		"COREHTTP_REDIS_ADDR=" + cfg.RedisAddr,
		"COREHTTP_QUEUE_INBOUND_KEY=" + cfg.InboundKey,
		"COREHTTP_QUEUE_OUTBOUND_KEY=" + cfg.OutboundKey,
	}
}

// openAuditRecorder applies pending migrations and connects a Recorder
// against cfg.AuditDatabaseURL. A missing DSN or an unreachable database
// disables the audit trail entirely rather than aborting the supervisor
// (spec §4.6's supervision loop owns liveness, not persistence).
func openAuditRecorder(cfg *config.SupervisorConfig) *audit.Recorder {
	if cfg.AuditDatabaseURL == "" {
		return nil
	}
	if err := audit.RunMigrations(cfg.AuditDatabaseURL, cfg.AuditMigrationsDir); err != nil {
		slog.Warn("audit migrations failed, disabling audit trail", "error", err)
		return nil
	}
	recorder, err := audit.NewRecorder(context.Background(), cfg.AuditDatabaseURL)
	if err != nil {
		slog.Warn("audit recorder unavailable, disabling audit trail", "error", err)
		return nil
	}
	return recorder
}

// serveMetrics exposes the Prometheus metrics registry on addr. Run in
// its own goroutine from the supervisor only: workers are short-lived
// re-execs of this same binary and do not themselves serve metrics.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics server starting", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "error", err)
	}
}

// runWorker is the path taken by a process the supervisor forked: it
// reconstructs its inherited listener/heartbeat resources, builds the
// pipeline, and serves requests until a soft shutdown signal arrives or
// the supervisor kills it outright (spec §4.4/§4.5).
func runWorker() {
	wcfg, err := config.LoadWorkerConfig()
	if err != nil {
		slog.Error("failed to load worker configuration", "error", err)
		os.Exit(1)
	}
	initLogger(wcfg.LogLevel)

	wi, err := supervisor.LoadWorkerInit()
	if err != nil {
		slog.Error("failed to reconstruct inherited worker resources", "error", err)
		os.Exit(1)
	}
	defer wi.Heartbeat.Close()

	handler, err := buildPipeline()
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigCh
		close(stop)
	}()

	identity := worker.ServerIdentity{Name: wcfg.ServerName, Port: wcfg.ServerPort}

	slog.Info("corehttp worker starting", "mode", wcfg.Mode, "slot", wi.Slot)

	var runErr error
	switch wcfg.Mode {
	case "queue":
		runErr = runQueueWorker(wcfg, identity, wi, handler, stop)
	default:
		runErr = runHTTPWorker(wcfg, identity, wi, handler, stop)
	}

	if runErr != nil {
		slog.Error("worker exited with error", "error", runErr)
		os.Exit(1)
	}
	slog.Info("corehttp worker shutdown complete", "slot", wi.Slot)
}

func runHTTPWorker(wcfg *config.WorkerConfig, identity worker.ServerIdentity, wi *supervisor.WorkerInit, handler pipeline.Handler, stop <-chan struct{}) error {
	w := worker.NewHTTPWorker(worker.HTTPWorkerConfig{
		Address:           net.JoinHostPort("", wcfg.ServerPort),
		InheritedListener: wi.Listener,
		Server:            identity,
		Heartbeat:         wi.HeartbeatFunc(),
	}, handler)
	return w.Run(stop)
}

func runQueueWorker(wcfg *config.WorkerConfig, identity worker.ServerIdentity, wi *supervisor.WorkerInit, handler pipeline.Handler, stop <-chan struct{}) error {
	transport, err := mqadapter.NewRedisTransport(context.Background(), wcfg.RedisAddr, wcfg.InboundKey, wcfg.OutboundKey)
	if err != nil {
		return err
	}
	defer transport.Close()

	w := worker.NewQueueWorker(worker.QueueWorkerConfig{
		Server:    identity,
		ChunkSize: wcfg.ChunkSize,
		Heartbeat: wi.HeartbeatFunc(),
	}, transport, handler)
	return w.Run(stop)
}

// buildPipeline assembles the ambient/domain middleware battery around
// the demo chi-backed endpoint (spec §9's supplemented "demo endpoint"
// feature) — a realistic worker wires its own application middleware and
// endpoint here; these are the ones this repository ships as reusable
// building blocks.
func buildPipeline() (pipeline.Handler, error) {
	b := pipeline.NewFromList([]pipeline.Middleware{
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Metrics(),
		middleware.Logging(),
		middleware.CORS(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		}),
		middleware.RateLimit(50, 100, true),
	}, endpointadapter.DemoRouter())
	return b.Build()
}

func initLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
