package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings the retrain trigger reads from the environment.
// The six training fields are required at invocation time but are not tagged
// as required here: a missing value must be reported by the handler, with
// every missing name, instead of failing process start.
type Config struct {
	ProjectID              string `env:"GCP_PROJECT_ID"`
	Region                 string `env:"GCP_REGION"`
	TrainingImageURI       string `env:"TRAINING_IMAGE_URI"`
	DataPath               string `env:"GCS_DATA_PATH"`
	ModelOutputDir         string `env:"GCS_MODEL_OUTPUT_DIR"`
	TrainingServiceAccount string `env:"TRAINING_SERVICE_ACCOUNT"`

	DisplayNamePrefix string        `env:"JOB_DISPLAY_NAME_PREFIX" envDefault:"house-price-retrain-job"`
	MachineType       string        `env:"TRAINING_MACHINE_TYPE" envDefault:"n1-standard-4"`
	AcceleratorType   string        `env:"TRAINING_ACCELERATOR_TYPE"`
	AcceleratorCount  int32         `env:"TRAINING_ACCELERATOR_COUNT" envDefault:"0"`
	JobTimeout        time.Duration `env:"TRAINING_JOB_TIMEOUT" envDefault:"0s"`

	VertexEndpoint      string `env:"VERTEX_ENDPOINT"`
	VerifyStagingBucket bool   `env:"VERIFY_STAGING_BUCKET" envDefault:"false"`
}

const (
	ProjectIDVar              = "GCP_PROJECT_ID"
	RegionVar                 = "GCP_REGION"
	TrainingImageURIVar       = "TRAINING_IMAGE_URI"
	DataPathVar               = "GCS_DATA_PATH"
	ModelOutputDirVar         = "GCS_MODEL_OUTPUT_DIR"
	TrainingServiceAccountVar = "TRAINING_SERVICE_ACCOUNT"
)

func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the config from the given variables instead of the process
// environment when vars is non-nil.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if vars != nil {
		opts.Environment = vars
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if cfg.AcceleratorCount < 0 {
		return Config{}, fmt.Errorf("invalid TRAINING_ACCELERATOR_COUNT %d: must not be negative", cfg.AcceleratorCount)
	}
	return cfg, nil
}

// Missing returns the env var names of every required value that is empty,
// in declaration order.
func (c Config) Missing() []string {
	required := []struct {
		name  string
		value string
	}{
		{ProjectIDVar, c.ProjectID},
		{RegionVar, c.Region},
		{TrainingImageURIVar, c.TrainingImageURI},
		{DataPathVar, c.DataPath},
		{ModelOutputDirVar, c.ModelOutputDir},
		{TrainingServiceAccountVar, c.TrainingServiceAccount},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	return missing
}
