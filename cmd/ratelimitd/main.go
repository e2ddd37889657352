/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command ratelimitd runs the rate limiting service.
package main

import (
	"context"
	"flag"
	"fmt"
	golog "log"

	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/service"
)

const defaultConfigPath = "config.yml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file (yaml or json)")
	flag.Parse()

	configPathSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configPathSet = true
		}
	})

	if err := runApp(context.Background(), *configPath, configPathSet); err != nil {
		golog.Fatal(err)
	}
}

func runApp(ctx context.Context, configPath string, configPathSet bool) error {
	path, err := resolveConfigPath(configPath, configPathSet)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := loadAppConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("service initialization failed", log.Error(err))
		return err
	}
	return service.New(logger, app).Start(ctx)
}
