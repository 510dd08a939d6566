package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumabench/spectro-service/internal/adapters/httpapi"
	"github.com/lumabench/spectro-service/internal/adapters/memory"
	"github.com/lumabench/spectro-service/internal/adapters/mqttpub"
	"github.com/lumabench/spectro-service/internal/adapters/sim"
	"github.com/lumabench/spectro-service/internal/adapters/sqlite"
	"github.com/lumabench/spectro-service/internal/calib"
	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/instrument"
	"github.com/lumabench/spectro-service/internal/ports"
	"github.com/lumabench/spectro-service/pkg/tlsconfig"
)

func main() {
	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Str("version", instrument.Version()).Msg("starting spectro service")

	config, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize repository
	var repo domain.MeasurementRepository
	switch config.RepoType {
	case "sqlite":
		r, err := sqlite.NewMeasurementRepository(config.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("db_path", config.DBPath).Msg("failed to open SQLite database")
		}
		defer r.Close()
		repo = r
		log.Info().Str("db_path", config.DBPath).Msg("initialized SQLite repository")
	default:
		repo = memory.NewMeasurementRepository()
		log.Info().Msg("initialized in-memory repository")
	}

	// Initialize the instrument driver over the simulated fleet. The
	// scan is bounded because real hardware needs time to settle.
	enum := sim.NewEnumerator(config.Devices, sim.WithSettleTime(300*time.Millisecond))
	mgr := instrument.NewManager(enum)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 5*time.Second)
	if err := mgr.Init(initCtx); err != nil {
		cancelInit()
		log.Fatal().Err(err).Msg("failed to initialize instrument driver")
	}
	cancelInit()
	defer mgr.Shutdown()

	// Correction matrix store
	store, err := calib.NewStore(config.CalibDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", config.CalibDir).Msg("failed to open calibration store")
	}

	// Telemetry
	pub := mqttpub.Disabled()
	if config.MQTTBroker != "" {
		pub, err = mqttpub.Connect(config.MQTTBroker, config.MQTTClientID, config.MQTTPrefix)
		if err != nil {
			log.Fatal().Err(err).Str("broker", config.MQTTBroker).Msg("failed to connect to MQTT broker")
		}
	} else {
		log.Info().Msg("MQTT_BROKER not set, telemetry disabled")
	}
	defer pub.Close()

	// HTTP API
	api := httpapi.NewServer(mgr, repo, pub, httpapi.WithCalibStore(store))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Port),
		Handler: api.Handler(),
	}

	useTLS := config.TLSCert != ""
	if useTLS {
		tlsCfg, err := tlsconfig.LoadServerTLS(config.TLSCert, config.TLSKey, config.TLSCA)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load TLS config")
		}
		server.TLSConfig = tlsCfg
		log.Info().Bool("mtls", config.TLSCA != "").Msg("TLS enabled")
	} else {
		log.Warn().Msg("TLS_CERT not set — starting without TLS (dev mode only)")
	}

	// Start server in goroutine
	go func() {
		var err error
		if useTLS {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to serve")
		}
	}()
	log.Info().Str("port", config.Port).Msg("HTTP server listening")

	// Start background recorder against one device
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if inst := openRecorderDevice(ctx, mgr, config); inst != nil {
		recorder := ports.NewRecorder(inst, repo, time.Duration(config.RecordInterval))
		go recorder.Start(ctx)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	cancel() // Stop recorder

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("server stopped")
}

// openRecorderDevice opens the device the background recorder samples:
// the configured serial, or the first device found.
func openRecorderDevice(ctx context.Context, mgr *instrument.Manager, config Config) ports.Instrument {
	serial := config.RecordSerial
	if serial == "" {
		devices := mgr.Devices()
		if len(devices) == 0 {
			log.Warn().Msg("no devices found, background recorder disabled")
			return nil
		}
		serial = devices[0].Serial
	}

	inst, err := mgr.OpenBySerial(ctx, serial)
	if err != nil {
		log.Error().Err(err).Str("serial", serial).Msg("failed to open recorder device")
		return nil
	}
	log.Info().Str("serial", serial).Msg("background recorder attached")
	return inst
}
