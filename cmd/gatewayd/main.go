package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/command"
	"github.com/urmzd/homai-gateway/internal/config"
	"github.com/urmzd/homai-gateway/internal/conrad"
	"github.com/urmzd/homai-gateway/internal/credentials"
	"github.com/urmzd/homai-gateway/internal/devcache"
	"github.com/urmzd/homai-gateway/internal/jablotron"
	"github.com/urmzd/homai-gateway/internal/schema"
	"github.com/urmzd/homai-gateway/pkg/api"
)

// @title           Homai Gateway API
// @version         1.0
// @description     Control surface of the multi-technology home gateway

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	configPath := flag.String("config", "", "Path to gateway YAML configuration")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides configuration)")
	jablotronPort := flag.String("jablotron-port", "", "Jablotron dongle serial port (overrides configuration)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *listenAddr != "" {
		cfg.ListenAddress = *listenAddr
	}
	if *jablotronPort != "" {
		cfg.Jablotron.Port = *jablotronPort
	}

	ctx := context.Background()

	// Credentials store: loaded at startup, flushed on shutdown.
	creds := credentials.NewFileStorage(cfg.Credentials.File)
	if cfg.Credentials.SaveDelay != nil {
		creds.SetSaveDelay(cfg.Credentials.SaveDelay.Std())
	}
	if cfg.Credentials.File != "" {
		creds.Load()
	}

	// Device description cache: best-effort, diagnostic only.
	cache, err := devcache.Open(cfg.DeviceCachePath)
	if err != nil {
		log.Warn().Err(err).Msg("Device cache unavailable, continuing without")
		cache = nil
	} else {
		defer func() {
			if err := cache.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close device cache")
			}
		}()

		if entries, err := cache.All(ctx); err == nil && len(entries) > 0 {
			log.Info().Int("devices", len(entries)).Msg("Previously seen devices")
			for _, e := range entries {
				log.Debug().
					Str("device", e.DeviceID.String()).
					Str("product", e.Product).
					Time("last_seen", e.LastSeen).
					Msg("cached device")
			}
		}
	}

	// Hub fans samples and descriptions out to SSE subscribers and the
	// downstream distributor; the logging distributor stands in for the
	// real remote-server transport.
	sinks := []command.Distributor{command.NewLoggingDistributor()}
	if cache != nil {
		sinks = append(sinks, &cacheDistributor{cache: cache})
	}
	hub := command.NewHub(sinks...)

	// Compose the technology managers that are configured.
	dispatcher := command.NewDispatcher()
	managers := 0

	if cfg.Jablotron.Port != "" {
		controller, err := jablotron.Open(cfg.Jablotron.Port, jablotron.Options{
			ProbeTimeout:  cfg.Jablotron.ProbeTimeout.Std(),
			ProbeAttempts: cfg.Jablotron.ProbeAttempts,
			IOReadTimeout: cfg.Jablotron.IOReadTimeout.Std(),
			IOErrorSleep:  cfg.Jablotron.IOErrorSleep.Std(),
		})
		if err != nil {
			log.Warn().Err(err).Str("port", cfg.Jablotron.Port).Msg("Jablotron dongle unavailable")
		} else {
			dispatcher.Register(jablotron.NewManager(controller, hub))
			managers++
			log.Info().Str("port", cfg.Jablotron.Port).Msg("Jablotron manager started")
		}
	}

	if cfg.Conrad.EventEndpoint != "" {
		var fhem *conrad.FHEMClient
		if cfg.Conrad.FHEMAddress != "" {
			fhem = conrad.NewFHEMClient(conrad.FHEMOptions{
				Address:       cfg.Conrad.FHEMAddress,
				RefreshTime:   cfg.Conrad.FHEMRefreshTime.Std(),
				ReconnectTime: cfg.Conrad.FHEMReconnect.Std(),
			})
		}
		dispatcher.Register(conrad.NewManager(conrad.Options{
			CmdEndpoint:   cfg.Conrad.CmdEndpoint,
			EventEndpoint: cfg.Conrad.EventEndpoint,
		}, hub, fhem))
		managers++
		log.Info().Str("endpoint", cfg.Conrad.EventEndpoint).Msg("Conrad manager started")
	}

	if managers == 0 {
		log.Warn().Msg("No technology manager configured; only the HTTP surface is available")
	}

	validator := schema.NewValidator()
	router := api.NewRouter(hub, dispatcher, validator, managers)

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")
		dispatcher.Stop()
		if err := creds.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to save credentials")
		}
		os.Exit(0)
	}()

	log.Info().Str("address", cfg.ListenAddress).Msg("Starting gateway API server")

	if err := router.Run(cfg.ListenAddress); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// cacheDistributor writes dispatched descriptions into the device cache;
// samples pass through untouched.
type cacheDistributor struct {
	cache *devcache.Cache
}

func (d *cacheDistributor) ShipSample(context.Context, beeeon.SensorData) error {
	return nil
}

func (d *cacheDistributor) ShipNewDevice(ctx context.Context, desc beeeon.DeviceDescription) error {
	return d.cache.Upsert(ctx, desc)
}
