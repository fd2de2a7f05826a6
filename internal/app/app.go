// Package app assembles the process: configuration, logging, storage, the
// simulation hub, and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"

	server "cliffhop/server"
	"cliffhop/server/internal/config"
	servernet "cliffhop/server/internal/net"
	"cliffhop/server/internal/persist"
	"cliffhop/server/internal/session"
	"cliffhop/server/internal/sim"
	"cliffhop/server/internal/stage"
	"cliffhop/server/internal/telemetry"
	"cliffhop/server/logging"
	loggingsinks "cliffhop/server/logging/sinks"
)

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, cfg config.Config) error {
	charm := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "cliffhop",
	})
	logger := telemetry.WrapCharm(charm)

	router, err := buildRouter(cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("close logging router: %v", cerr)
		}
	}()

	stages, err := stage.Load(cfg.StagePath, logger)
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}

	store, err := persist.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	counters := telemetry.NewCounters()
	recorder := persist.NewRecorder(store, persist.RecorderConfig{
		Logger:  logger,
		Metrics: counters,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if cerr := recorder.Close(closeCtx); cerr != nil {
			logger.Printf("close recorder: %v", cerr)
		}
	}()

	world, err := sim.NewWorld(stages, sim.Deps{
		Logger:    logger,
		Metrics:   counters,
		Publisher: router,
		Clock:     logging.SystemClock{},
		Recorder:  recorder,
	})
	if err != nil {
		return fmt.Errorf("build world: %w", err)
	}

	hub := server.NewHub(world, hubConfig(cfg))

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir: cfg.ClientDir,
		Logger:    logger,
		Counters:  counters,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Printf("shutting down")
	hub.Shutdown()
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	return nil
}

func hubConfig(cfg config.Config) server.Config {
	hubCfg := server.DefaultConfig()
	if cfg.KeyframeInterval > 0 {
		hubCfg.KeyframeInterval = cfg.KeyframeInterval
	}
	if cfg.BufferThreshold > 0 {
		hubCfg.BufferThreshold = cfg.BufferThreshold
	}
	if cfg.CommandCapacity > 0 {
		hubCfg.CommandCapacity = cfg.CommandCapacity
	}
	if cfg.PerActorLimit > 0 {
		hubCfg.PerActorLimit = cfg.PerActorLimit
	}
	if cfg.Session.ProbeInterval > 0 {
		hubCfg.ProbeInterval = cfg.Session.ProbeInterval
	}
	if cfg.Session.ProbeTimeout > 0 {
		hubCfg.ProbeTimeout = cfg.Session.ProbeTimeout
	}

	sess := session.DefaultConfig()
	if cfg.Session.TTL > 0 {
		sess.TTL = cfg.Session.TTL
	}
	if cfg.Session.IdleTimeout > 0 {
		sess.IdleTimeout = cfg.Session.IdleTimeout
	}
	if cfg.Session.IdleWarning > 0 {
		sess.IdleWarning = cfg.Session.IdleWarning
	}
	if cfg.Session.RateLimit > 0 {
		sess.RateLimit = cfg.Session.RateLimit
	}
	sess.VerifiedToken = cfg.Session.VerifiedToken
	hubCfg.Session = sess
	return hubCfg
}

func buildRouter(cfg config.LogConfig) (*logging.Router, error) {
	logCfg := logging.DefaultConfig()
	logCfg.EnabledSinks = cfg.Sinks
	logCfg.MinimumSeverity = parseSeverity(cfg.Severity)
	logCfg.MutedCategories = cfg.MuteCategories
	logCfg.Console.UseColor = cfg.Color
	logCfg.JSON.FilePath = cfg.JSONPath

	var named []logging.NamedSink
	for _, name := range logCfg.EnabledSinks {
		switch name {
		case "console":
			named = append(named, logging.NamedSink{
				Name: "console",
				Sink: loggingsinks.NewConsole(os.Stdout, logCfg.Console),
			})
		case "json":
			if logCfg.JSON.FilePath == "" {
				return nil, fmt.Errorf("json log sink enabled without a file path")
			}
			file, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open json log file: %w", err)
			}
			named = append(named, logging.NamedSink{
				Name: "json",
				Sink: loggingsinks.NewJSON(file, logCfg.JSON.FlushInterval),
			})
		default:
			return nil, fmt.Errorf("unknown log sink %q", name)
		}
	}
	return logging.NewRouter(logging.SystemClock{}, logCfg, named)
}

func parseSeverity(name string) logging.Severity {
	switch name {
	case "debug":
		return logging.SeverityDebug
	case "warn":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}
