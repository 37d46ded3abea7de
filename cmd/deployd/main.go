package main

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsdeck/deployd/internal/api"
	"github.com/opsdeck/deployd/internal/config"
	deployservice "github.com/opsdeck/deployd/internal/deploy/service"
	"github.com/opsdeck/deployd/internal/logstore"
	"github.com/opsdeck/deployd/internal/middleware"
	"github.com/opsdeck/deployd/internal/monitor"
	"github.com/opsdeck/deployd/internal/registry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// load config first
	log.Info().Msg("Starting deployd api server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// configure log level from config
	switch strings.ToLower(cfg.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	reg := registry.New()
	if err := reg.LoadFile(cfg.Deploy.TargetsFile); err != nil {
		log.Fatal().Err(err).Msg("failed to load target registry")
	}

	store, err := logstore.New(cfg.Logs.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open log store")
	}

	prober := deployservice.NewTCPProber(config.ParseDuration(cfg.Deploy.PreflightTimeout, 3*time.Second))
	executor := deployservice.NewSSHExecutor(cfg.Deploy.SSHKeyFile, cfg.Deploy.SSHUser,
		config.ParseDuration(cfg.Deploy.Timeout, 10*time.Minute))
	orch := deployservice.NewOrchestrator(reg, prober, executor, store, cfg.Deploy.Command)

	pollInterval := config.ParseDuration(cfg.Logs.PollInterval, 500*time.Millisecond)
	streamer := logstore.NewStreamer(store, pollInterval, orch.LogActive)

	mon, err := buildMonitor(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build service monitor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mon.Start(ctx, config.ParseDuration(cfg.Monitor.Interval, 30*time.Second))
	go runSweeper(ctx, store, orch,
		config.ParseDuration(cfg.Logs.Retention, 7*24*time.Hour),
		config.ParseDuration(cfg.Logs.SweepInterval, time.Hour))

	router := gin.New()
	router.Use(middleware.RequestLogger)
	router.Use(gin.Recovery())
	router.Use(middleware.Authentication)
	api.NewApi(router, api.Deps{
		Registry: reg,
		Orch:     orch,
		Prober:   prober,
		Store:    store,
		Streamer: streamer,
		Monitor:  mon,
		Token:    cfg.Deploy.Token,
	})

	log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
	if err := router.Run(cfg.Server.BindAddr); err != nil {
		log.Fatal().Err(err).Msg("start deployd api server failed.")
	}
	log.Info().Msg("deployd api server exit...")
}

func buildMonitor(cfg *config.Config) (*monitor.Monitor, error) {
	defs, err := monitor.LoadDefinitions(cfg.Monitor.ServicesFile)
	if err != nil {
		return nil, err
	}

	probeTimeout := config.ParseDuration(cfg.Monitor.ProbeTimeout, 5*time.Second)
	probers := map[monitor.Kind]monitor.Prober{
		monitor.KindHTTP: monitor.NewHTTPProber(probeTimeout),
	}
	if containerProber, err := monitor.NewContainerProber(); err == nil {
		probers[monitor.KindContainer] = containerProber
	} else {
		// Container services will report unhealthy until the runtime is back.
		log.Error().Err(err).Msg("docker client init failed, container probes disabled")
	}

	return monitor.New(defs, probers, probeTimeout), nil
}

func runSweeper(ctx context.Context, store *logstore.Store, orch *deployservice.Orchestrator, retention, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := store.Sweep(retention, orch.LogActive); err != nil {
				log.Error().Err(err).Msg("log retention sweep failed")
			}
		}
	}
}
