package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aleister1102/procwatch/internal/config"
	"github.com/aleister1102/procwatch/internal/logger"
	"github.com/aleister1102/procwatch/internal/models"
	"github.com/aleister1102/procwatch/internal/monitor"
	"github.com/aleister1102/procwatch/internal/notifier"
	"github.com/aleister1102/procwatch/internal/sampler"

	"github.com/rs/zerolog"
)

func main() {
	configFile := flag.String("config", "", "Path to the YAML/JSON configuration file. If not set, searches default locations.")
	configFileAlias := flag.String("c", "", "Alias for -config")
	writeDefaultConfig := flag.Bool("write-default-config", false, "Print the default configuration as YAML and exit")
	flag.Parse()

	if *configFile == "" && *configFileAlias != "" {
		*configFile = *configFileAlias
	}

	if *writeDefaultConfig {
		data, err := config.MarshalDefaultYAML()
		if err != nil {
			stdlog.Fatalf("[FATAL] Could not render default config: %v", err)
		}
		fmt.Print(string(data))
		return
	}

	configPath := config.GetConfigPath(*configFile)
	gCfg, err := config.LoadGlobalConfig(configPath)
	if err != nil {
		stdlog.Fatalf("[FATAL] Could not load config using path '%s': %v", *configFile, err)
	}
	if err := config.ValidateConfig(gCfg); err != nil {
		stdlog.Fatalf("[FATAL] Invalid configuration: %v", err)
	}

	zLogger, err := logger.New(gCfg.LogConfig)
	if err != nil {
		stdlog.Fatalf("[FATAL] Could not initialize logger: %v", err)
	}
	zLogger.Info().Str("config", configPath).Msg("procwatch starting")

	configMgr, err := config.NewConfigManager(configPath, config.ConfigManagerOptions{
		Logger:           zLogger,
		HotReloadEnabled: true,
		ReloadDelay:      config.DefaultConfigManagerOptions().ReloadDelay,
	})
	if err != nil {
		zLogger.Fatal().Err(err).Msg("Could not initialize configuration manager")
	}
	defer configMgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	configMgr.StartHotReload(ctx)

	client := notifier.NewDBusClient(zLogger)
	defer client.Close()
	service := monitor.NewService(configMgr, sampler.NewGopsutilSource(), client, zLogger)

	if err := service.Start(ctx); err != nil {
		zLogger.Fatal().Err(err).Msg("Could not start monitor service")
	}
	defer service.Stop()

	go reportDeliveryFailures(service, zLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zLogger.Info().Str("signal", sig.String()).Msg("Shutting down")
}

// reportDeliveryFailures surfaces notification delivery errors; the pipeline
// itself keeps running without the notification channel.
func reportDeliveryFailures(service *monitor.Service, zLogger zerolog.Logger) {
	for err := range service.Errors() {
		var deliveryErr *models.DeliveryError
		if errors.As(err, &deliveryErr) && errors.Is(deliveryErr, models.ErrBusUnavailable) {
			zLogger.Error().Err(err).Msg("Desktop notifications disabled: bus unavailable")
			continue
		}
		zLogger.Error().Err(err).Msg("Notification delivery failure")
	}
}
