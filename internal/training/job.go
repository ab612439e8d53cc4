package training

import (
	"errors"
	"fmt"
	"retrain-trigger/internal/config"
	"strings"
	"time"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
)

const displayNameTimeFormat = "20060102-150405"

var (
	ErrNoBucket           = errors.New("uri does not contain a bucket segment")
	ErrUnknownAccelerator = errors.New("unknown accelerator type")
)

const AcceleratorTypeVar = "TRAINING_ACCELERATOR_TYPE"

// FieldError names the setting a job request could not be built from.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

type MachineSpec struct {
	MachineType      string
	AcceleratorType  string
	AcceleratorCount int32
}

type ContainerSpec struct {
	ImageURI string
	Command  []string
	Args     []string
}

type WorkerPoolSpec struct {
	Machine      MachineSpec
	ReplicaCount int64
	Container    ContainerSpec
}

// JobRequest describes one custom training job. It is built per invocation
// and discarded after submission.
type JobRequest struct {
	DisplayName     string
	Project         string
	Region          string
	StagingLocation string
	ServiceAccount  string
	Timeout         time.Duration
	WorkerPools     []WorkerPoolSpec
}

// JobHandle identifies a job the platform has accepted.
type JobHandle struct {
	Name        string
	DisplayName string
	State       string
}

// DisplayName formats prefix-YYYYMMDD-HHMMSS in UTC. Two calls within the
// same second return the same name.
func DisplayName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s", prefix, now.UTC().Format(displayNameTimeFormat))
}

// StagingLocation returns gs://<bucket> for a uri of the form
// scheme://bucket/... .
func StagingLocation(uri string) (string, error) {
	parts := strings.Split(uri, "/")
	if len(parts) < 3 || !strings.HasSuffix(parts[0], ":") || parts[1] != "" || parts[2] == "" {
		return "", fmt.Errorf("invalid uri '%s': %w", uri, ErrNoBucket)
	}
	return "gs://" + parts[2], nil
}

func TrainingArgs(dataPath, modelDir string) []string {
	return []string{
		"--data-path=" + dataPath,
		"--model-dir=" + modelDir,
	}
}

// Machine returns the worker machine for cfg. An accelerator count without a
// type is ignored; a type without a count gets one accelerator.
func Machine(cfg config.Config) (MachineSpec, error) {
	machine := MachineSpec{MachineType: cfg.MachineType}
	if cfg.AcceleratorType == "" {
		return machine, nil
	}

	accel, ok := aiplatformpb.AcceleratorType_value[cfg.AcceleratorType]
	if !ok || aiplatformpb.AcceleratorType(accel) == aiplatformpb.AcceleratorType_ACCELERATOR_TYPE_UNSPECIFIED {
		return MachineSpec{}, fmt.Errorf("'%s': %w", cfg.AcceleratorType, ErrUnknownAccelerator)
	}
	machine.AcceleratorType = cfg.AcceleratorType
	machine.AcceleratorCount = cfg.AcceleratorCount
	if machine.AcceleratorCount == 0 {
		machine.AcceleratorCount = 1
	}
	return machine, nil
}

// BuildRequest assembles the job request from a validated config. Failures
// are *FieldError values naming the offending setting.
func BuildRequest(cfg config.Config, now time.Time) (JobRequest, error) {
	staging, err := StagingLocation(cfg.ModelOutputDir)
	if err != nil {
		return JobRequest{}, &FieldError{Field: config.ModelOutputDirVar, Err: err}
	}

	machine, err := Machine(cfg)
	if err != nil {
		return JobRequest{}, &FieldError{Field: AcceleratorTypeVar, Err: err}
	}

	pool := WorkerPoolSpec{
		Machine:      machine,
		ReplicaCount: 1,
		Container: ContainerSpec{
			ImageURI: cfg.TrainingImageURI,
			Command:  []string{},
			Args:     TrainingArgs(cfg.DataPath, cfg.ModelOutputDir),
		},
	}

	return JobRequest{
		DisplayName:     DisplayName(cfg.DisplayNamePrefix, now),
		Project:         cfg.ProjectID,
		Region:          cfg.Region,
		StagingLocation: staging,
		ServiceAccount:  cfg.TrainingServiceAccount,
		Timeout:         cfg.JobTimeout,
		WorkerPools:     []WorkerPoolSpec{pool},
	}, nil
}
