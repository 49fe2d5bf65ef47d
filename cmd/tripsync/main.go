package main

import (
	"context"
	"os"

	"github.com/spf13/pflag"

	"github.com/Temutjin2k/ride-tracking-system/config"
	"github.com/Temutjin2k/ride-tracking-system/internal/app"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
)

func main() {
	pflag.Parse()
	if *config.HelpFlag {
		config.PrintHelp()
		return
	}

	ctx := context.Background()
	log := logger.InitLogger("tripsync", logger.LevelInfo)

	cfg, err := config.NewConfig(*config.ConfigPath)
	if err != nil {
		log.Error(ctx, "failed to configure application", err)
		config.PrintHelp()
		os.Exit(1)
	}

	// Printing configuration
	config.PrintConfig(cfg)

	log = logger.InitLogger("tripsync-"+string(cfg.Mode), cfg.Log.Level)

	// Creating application
	application, err := app.NewApplication(ctx, *cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init application", err)
		os.Exit(1)
	}

	// Running the apllication
	if err = application.Run(ctx); err != nil {
		log.Error(ctx, "failed to run application", err)
		os.Exit(1)
	}
}
