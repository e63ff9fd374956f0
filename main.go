// Command cruise runs the cruise-control decision engine: it subscribes to
// the vehicle's clock, velocity, target-speed, engage, LiDAR, and driver-input
// streams, steps the PID controller on every velocity arrival, and publishes
// actuation and engage transitions back to the bus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configpkg "egodrive/cruise/internal/config"
	"egodrive/cruise/internal/dispatch"
	"egodrive/cruise/internal/httpapi"
	"egodrive/cruise/internal/logging"
	"egodrive/cruise/internal/pid"
	"egodrive/cruise/internal/results"
	"egodrive/cruise/internal/state"
	"egodrive/cruise/internal/telemetry"
	"egodrive/cruise/internal/transport/natsbus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := configpkg.Load()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging unavailable: %w", err)
	}
	defer logger.Sync()

	startedAt := time.Now()

	recorder, err := results.NewRecorder(cfg.ResultsDir, time.Now)
	if err != nil {
		return fmt.Errorf("results recorder unavailable: %w", err)
	}
	logger.Info("run started", logging.String("run_id", recorder.RunID()))

	//1.- Assemble the controller core around the shared state block.
	controller := pid.NewControllerWithConfig(
		pid.Gains{Kp: cfg.Gains.Kp, Ki: cfg.Gains.Ki, Kd: cfg.Gains.Kd},
		pid.SafetyConfig{
			EmergencyStopDistance:  cfg.Safety.EmergencyStopDistance,
			SlowDownDistance:       cfg.Safety.SlowDownDistance,
			MaxBrakingAcceleration: cfg.Safety.MaxBrakingAcceleration,
		},
		pid.BrakeConfig{
			ManualBrakeThreshold: cfg.Safety.ManualBrakeThreshold,
			TargetSpeedTolerance: cfg.Safety.TargetSpeedTolerance,
		},
	)
	store := state.NewStore()

	//2.- Stand up the telemetry hub, optionally behind token auth.
	var authenticator telemetry.Authenticator
	if cfg.TelemetryAuthSecret != "" {
		hmacAuth, err := telemetry.NewHMACAuthenticator(cfg.TelemetryAuthSecret)
		if err != nil {
			return fmt.Errorf("telemetry auth unavailable: %w", err)
		}
		authenticator = hmacAuth
		logger.Info("telemetry token auth enabled")
	}
	hub := telemetry.NewHub(logger, cfg.TelemetryQueueSize, authenticator)
	defer hub.Close()

	//3.- Connect the bus and wire the dispatcher over it.
	bus, err := natsbus.Connect(natsbus.Options{
		URL:           cfg.BusURL,
		ReconnectWait: cfg.BusReconnectWait,
		MaxReconnects: cfg.BusMaxReconnects,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("bus unavailable at %s: %w", cfg.BusURL, err)
	}
	defer bus.Close()

	dispatcher, err := dispatch.New(dispatch.Options{
		Bus:        bus,
		Subjects:   cfg.Subjects,
		Controller: controller,
		Store:      store,
		Recorder:   recorder,
		Logger:     logger,
		Observers:  []dispatch.Observer{hub},
	})
	if err != nil {
		return fmt.Errorf("dispatcher wiring failed: %w", err)
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("ingress subscriptions failed: %w", err)
	}
	defer dispatcher.Close()

	//4.- Expose the operational HTTP surface.
	mux := http.NewServeMux()
	httpapi.NewHandlerSet(httpapi.Options{
		Logger:        logger,
		StartedAt:     startedAt,
		Dispatcher:    dispatcher.Stats,
		RecorderStats: recorder.Snapshot,
		Summary:       recorder.Summary,
		Telemetry:     hub.Stats,
	}).Register(mux)
	mux.HandleFunc("/ws/telemetry", hub.Handler())
	registerTopicDocEndpoints(mux, cfg.Subjects)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: logging.HTTPTraceMiddleware(logger)(mux),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", logging.Error(err))
		}
	}()
	logger.Info("monitor listening", logging.String("url", listenerURL(cfg.HTTPAddr, false)))

	//5.- Serve liveness over gRPC for fleet probes.
	stopHealth, err := startHealthServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("grpc health unavailable: %w", err)
	}

	//6.- Run until a shutdown signal, then flush artefacts.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutdown requested")

	dispatcher.Close()
	stopHealth()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", logging.Error(err))
	}

	if path, err := recorder.Flush(); err != nil {
		logger.Error("results flush failed", logging.Error(err))
	} else {
		logger.Info("results flushed", logging.String("path", path))
	}
	logSummary(logger, recorder.Summary())
	return nil
}

// logSummary mirrors the run statistics into the structured log at shutdown.
func logSummary(logger *logging.Logger, summary results.Summary) {
	if summary.Samples == 0 {
		logger.Info("run summary", logging.Int("samples", 0))
		return
	}
	logger.Info("run summary",
		logging.Int("samples", summary.Samples),
		logging.Float("min_error", summary.MinError),
		logging.Float("max_error", summary.MaxError),
		logging.Float("mean_error", summary.MeanError),
		logging.Float("min_acceleration", summary.MinAcceleration),
		logging.Float("max_acceleration", summary.MaxAcceleration),
		logging.Float("mean_acceleration", summary.MeanAcceleration))
}
