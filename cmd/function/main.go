package main

import (
	"log"
	"log/slog"
	"retrain-trigger/cmd"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/caarlos0/env/v11"

	// Registers the TriggerRetraining CloudEvent function.
	_ "retrain-trigger"
)

type FunctionConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
}

func main() {
	cmd.LoadEnvFile()

	var cfg FunctionConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	slog.Info("starting functions framework", "port", cfg.Port, "target", "TriggerRetraining")
	if err := funcframework.Start(cfg.Port); err != nil {
		log.Fatalf("funcframework.Start: %v", err)
	}
}
