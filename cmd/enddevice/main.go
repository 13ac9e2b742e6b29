package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-enddevice/internal/api"
	"github.com/lorawan-server/lorawan-enddevice/internal/appbridge"
	"github.com/lorawan-server/lorawan-enddevice/internal/auth"
	"github.com/lorawan-server/lorawan-enddevice/internal/config"
	"github.com/lorawan-server/lorawan-enddevice/internal/controller"
	"github.com/lorawan-server/lorawan-enddevice/internal/eventbus"
	"github.com/lorawan-server/lorawan-enddevice/internal/mac"
	"github.com/lorawan-server/lorawan-enddevice/internal/radiosim"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var configPath = flag.String("config", "config/enddevice.yml", "path to configuration file")
	var showConfig = flag.Bool("show-config", false, "print resolved configuration and exit")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("load config failed")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("invalid log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	log.Info().Str("config_path", *configPath).Str("dev_eui", cfg.Device.DevEUI).Msg("lorawan-enddevice starting")

	macAdapter := mac.NewAdapter(cfg.MAC.Region, cfg.ControllerOptions().SpecVersion)
	ctrl := controller.New(cfg.Device.DevEUI, macAdapter, cfg.ControllerOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if status := ctrl.Initialize(ctx); !status.OK() {
		log.Fatal().Str("status", status.String()).Msg("controller initialize failed")
	}

	params, err := cfg.ActivationParams()
	if err != nil {
		log.Fatal().Err(err).Msg("resolve activation params failed")
	}
	if status := ctrl.Connect(params); !status.OK() {
		log.Fatal().Str("status", status.String()).Msg("connect failed")
	}

	// No real radio driver is in scope, so internal/radiosim stands in for
	// one: it simulates TimeOnAir and the RX1/RX2 windows and feeds the
	// result back through the same Deliver* entry points a hardware ISR
	// would use. OnTXStart fires for every frame the controller arms for
	// transmission, explicit or automatic, so this is the only wiring a
	// driver swap would need to touch.
	sim := radiosim.New(ctrl, radiosim.Options{
		TimeOnAir: cfg.Radio.TimeOnAir,
		RX1Delay:  cfg.Radio.RX1Delay,
		RX2Delay:  cfg.Radio.RX2Delay,
		RXWindow:  cfg.Radio.RXWindow,
	})
	ctrl.OnTXStart(func() {
		if wire := macAdapter.GetLastEncodedFrame(); len(wire) > 0 {
			log.Debug().Int("bytes", len(wire)).Msg("handing encoded uplink frame to radio")
		}
		sim.TriggerTX(ctx)
	})

	var bus *eventbus.Bus
	if cfg.NATS.URL != "" {
		bus, err = eventbus.New(cfg.NATS.URL)
		if err != nil {
			log.Error().Err(err).Msg("eventbus connect failed, continuing without it")
		} else {
			bus.Attach(ctrl, cfg.Device.DevEUI)
			defer bus.Close()
		}
	}

	var bridge *appbridge.Bridge
	if cfg.MQTT.BrokerURL != "" {
		bridge, err = appbridge.New(appbridge.Config{
			BrokerURL:   cfg.MQTT.BrokerURL,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TLS:         cfg.MQTT.TLS,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, cfg.Device.DevEUI, ctrl)
		if err != nil {
			log.Error().Err(err).Msg("appbridge connect failed, continuing without it")
		} else {
			defer bridge.Close()
		}
	}

	authMgr := auth.NewManager([]byte(cfg.API.JWTSecret), cfg.API.OperatorSecretHash, cfg.Device.DevEUI, cfg.API.AccessTokenTTL)
	restServer := api.NewRESTServer(ctrl, authMgr, cfg.API.CORSOrigins)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := restServer.ListenAndServe(addr); err != nil {
			log.Error().Err(err).Msg("debug API server stopped")
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("debug API server shutdown failed")
	}
	ctrl.Disconnect()
	cancel()

	log.Info().Msg("lorawan-enddevice stopped")
}
