package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"retrain-trigger/internal/training"
	"sync"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/durationpb"
)

type Options struct {
	// Endpoint replaces the regional Vertex AI endpoint with a host:port, e.g.
	// for an emulator. Requests to it use plaintext gRPC without authentication.
	Endpoint string

	ClientOptions []option.ClientOption
}

// Submitter creates Vertex AI custom jobs. CreateCustomJob returns once the
// job resource exists, so Submit never waits on the training run itself.
// Clients are created on first use per region and reused.
type Submitter struct {
	opts Options

	mu      sync.Mutex
	clients map[string]*aiplatform.JobClient
}

func NewSubmitter(opts Options) *Submitter {
	return &Submitter{opts: opts, clients: make(map[string]*aiplatform.JobClient)}
}

func RegionalEndpoint(region string) string {
	return fmt.Sprintf("%s-aiplatform.googleapis.com:443", region)
}

func (s *Submitter) client(ctx context.Context, region string) (*aiplatform.JobClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[region]; ok {
		return c, nil
	}

	opts := []option.ClientOption{option.WithEndpoint(RegionalEndpoint(region))}
	if s.opts.Endpoint != "" {
		opts = []option.ClientOption{
			option.WithEndpoint(s.opts.Endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	c, err := aiplatform.NewJobClient(ctx, append(opts, s.opts.ClientOptions...)...)
	if err != nil {
		return nil, err
	}

	slog.Info("initialized vertex ai job client", "region", region, "endpoint_override", s.opts.Endpoint)
	s.clients[region] = c
	return c, nil
}

func (s *Submitter) Submit(ctx context.Context, job training.JobRequest) (*training.JobHandle, error) {
	req, err := BuildCustomJobRequest(job)
	if err != nil {
		return nil, err
	}

	c, err := s.client(ctx, job.Region)
	if err != nil {
		return nil, fmt.Errorf("error initializing vertex ai client for region %s: %w", job.Region, err)
	}

	created, err := c.CreateCustomJob(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error creating custom job %s: %w", job.DisplayName, err)
	}

	return &training.JobHandle{
		Name:        created.GetName(),
		DisplayName: created.GetDisplayName(),
		State:       created.GetState().String(),
	}, nil
}

func (s *Submitter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for region, c := range s.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing client for region %s: %w", region, err))
		}
		delete(s.clients, region)
	}
	return errors.Join(errs...)
}

func JobParent(project, region string) string {
	return fmt.Sprintf("projects/%s/locations/%s", project, region)
}

// BaseOutputDirectory is where the platform writes job artifacts, under the
// staging location.
func BaseOutputDirectory(job training.JobRequest) string {
	return fmt.Sprintf("%s/aiplatform-custom-job-%s", job.StagingLocation, job.DisplayName)
}

func buildMachineSpec(m training.MachineSpec) (*aiplatformpb.MachineSpec, error) {
	spec := &aiplatformpb.MachineSpec{MachineType: m.MachineType}
	if m.AcceleratorType == "" {
		return spec, nil
	}

	accel, ok := aiplatformpb.AcceleratorType_value[m.AcceleratorType]
	if !ok {
		return nil, fmt.Errorf("unknown accelerator type '%s'", m.AcceleratorType)
	}
	spec.AcceleratorType = aiplatformpb.AcceleratorType(accel)
	spec.AcceleratorCount = m.AcceleratorCount
	return spec, nil
}

func BuildCustomJobRequest(job training.JobRequest) (*aiplatformpb.CreateCustomJobRequest, error) {
	if len(job.WorkerPools) == 0 {
		return nil, fmt.Errorf("job %s has no worker pools", job.DisplayName)
	}

	pools := make([]*aiplatformpb.WorkerPoolSpec, 0, len(job.WorkerPools))
	for _, pool := range job.WorkerPools {
		machine, err := buildMachineSpec(pool.Machine)
		if err != nil {
			return nil, err
		}
		pools = append(pools, &aiplatformpb.WorkerPoolSpec{
			MachineSpec:  machine,
			ReplicaCount: pool.ReplicaCount,
			Task: &aiplatformpb.WorkerPoolSpec_ContainerSpec{
				ContainerSpec: &aiplatformpb.ContainerSpec{
					ImageUri: pool.Container.ImageURI,
					Command:  pool.Container.Command,
					Args:     pool.Container.Args,
				},
			},
		})
	}

	spec := &aiplatformpb.CustomJobSpec{
		WorkerPoolSpecs: pools,
		ServiceAccount:  job.ServiceAccount,
		BaseOutputDirectory: &aiplatformpb.GcsDestination{
			OutputUriPrefix: BaseOutputDirectory(job),
		},
	}
	if job.Timeout > 0 {
		spec.Scheduling = &aiplatformpb.Scheduling{Timeout: durationpb.New(job.Timeout)}
	}

	return &aiplatformpb.CreateCustomJobRequest{
		Parent: JobParent(job.Project, job.Region),
		CustomJob: &aiplatformpb.CustomJob{
			DisplayName: job.DisplayName,
			JobSpec:     spec,
		},
	}, nil
}
