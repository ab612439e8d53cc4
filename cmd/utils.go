package cmd

import (
	"flag"
	"log"
	"os"
	"retrain-trigger/internal/logging"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads variables from the file named by -env, if any, before
// the config is parsed.
func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func SetupLogging() {
	logging.Setup(os.Stderr, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
}
