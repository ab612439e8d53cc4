package vertex_test

import (
	"context"
	"net"
	"retrain-trigger/internal/training"
	"retrain-trigger/internal/vertex"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

func testJob() training.JobRequest {
	return training.JobRequest{
		DisplayName:     "house-price-retrain-job-20261019-143005",
		Project:         "my-project",
		Region:          "us-central1",
		StagingLocation: "gs://my-bucket",
		ServiceAccount:  "trainer@my-project.iam.gserviceaccount.com",
		WorkerPools: []training.WorkerPoolSpec{{
			Machine:      training.MachineSpec{MachineType: "n1-standard-4"},
			ReplicaCount: 1,
			Container: training.ContainerSpec{
				ImageURI: "us-docker.pkg.dev/my-project/train/house-price:latest",
				Command:  []string{},
				Args:     []string{"--data-path=gs://my-bucket/data/houses.csv", "--model-dir=gs://my-bucket/models/"},
			},
		}},
	}
}

func TestBuildCustomJobRequest(t *testing.T) {
	req, err := vertex.BuildCustomJobRequest(testJob())
	require.NoError(t, err)

	assert.Equal(t, "projects/my-project/locations/us-central1", req.GetParent())

	job := req.GetCustomJob()
	assert.Equal(t, "house-price-retrain-job-20261019-143005", job.GetDisplayName())

	spec := job.GetJobSpec()
	assert.Equal(t, "trainer@my-project.iam.gserviceaccount.com", spec.GetServiceAccount())
	assert.Equal(t, "gs://my-bucket/aiplatform-custom-job-house-price-retrain-job-20261019-143005", spec.GetBaseOutputDirectory().GetOutputUriPrefix())
	assert.Nil(t, spec.GetScheduling())

	require.Len(t, spec.GetWorkerPoolSpecs(), 1)
	pool := spec.GetWorkerPoolSpecs()[0]
	assert.Equal(t, int64(1), pool.GetReplicaCount())
	assert.Equal(t, "n1-standard-4", pool.GetMachineSpec().GetMachineType())
	assert.Equal(t, aiplatformpb.AcceleratorType_ACCELERATOR_TYPE_UNSPECIFIED, pool.GetMachineSpec().GetAcceleratorType())
	assert.Equal(t, int32(0), pool.GetMachineSpec().GetAcceleratorCount())
	assert.Equal(t, "us-docker.pkg.dev/my-project/train/house-price:latest", pool.GetContainerSpec().GetImageUri())
	assert.Empty(t, pool.GetContainerSpec().GetCommand())
	assert.Equal(t, []string{"--data-path=gs://my-bucket/data/houses.csv", "--model-dir=gs://my-bucket/models/"}, pool.GetContainerSpec().GetArgs())
}

func TestBuildCustomJobRequestAcceleratorAndTimeout(t *testing.T) {
	job := testJob()
	job.Timeout = 2 * time.Hour
	job.WorkerPools[0].Machine.AcceleratorType = "NVIDIA_TESLA_T4"
	job.WorkerPools[0].Machine.AcceleratorCount = 1

	req, err := vertex.BuildCustomJobRequest(job)
	require.NoError(t, err)

	spec := req.GetCustomJob().GetJobSpec()
	assert.Equal(t, 2*time.Hour, spec.GetScheduling().GetTimeout().AsDuration())
	machine := spec.GetWorkerPoolSpecs()[0].GetMachineSpec()
	assert.Equal(t, aiplatformpb.AcceleratorType_NVIDIA_TESLA_T4, machine.GetAcceleratorType())
	assert.Equal(t, int32(1), machine.GetAcceleratorCount())

	job.WorkerPools[0].Machine.AcceleratorType = "QUANTUM_TPU"
	_, err = vertex.BuildCustomJobRequest(job)
	assert.ErrorContains(t, err, "unknown accelerator type")

	job.WorkerPools = nil
	_, err = vertex.BuildCustomJobRequest(job)
	assert.Error(t, err)
}

type fakeJobService struct {
	aiplatformpb.UnimplementedJobServiceServer

	mu       sync.Mutex
	requests []*aiplatformpb.CreateCustomJobRequest
	err      error
}

func (f *fakeJobService) CreateCustomJob(ctx context.Context, req *aiplatformpb.CreateCustomJobRequest) (*aiplatformpb.CustomJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}

	job := proto.Clone(req.GetCustomJob()).(*aiplatformpb.CustomJob)
	job.Name = req.GetParent() + "/customJobs/987"
	job.State = aiplatformpb.JobState_JOB_STATE_QUEUED
	return job, nil
}

func (f *fakeJobService) received() []*aiplatformpb.CreateCustomJobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*aiplatformpb.CreateCustomJobRequest(nil), f.requests...)
}

// startJobService serves fake on a local port and returns its host:port.
func startJobService(t *testing.T, fake *fakeJobService) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	aiplatformpb.RegisterJobServiceServer(server, fake)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	return lis.Addr().String()
}

func TestSubmitAgainstEndpoint(t *testing.T) {
	fake := &fakeJobService{}
	submitter := vertex.NewSubmitter(vertex.Options{Endpoint: startJobService(t, fake)})
	defer submitter.Close()

	handle, err := submitter.Submit(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, "projects/my-project/locations/us-central1/customJobs/987", handle.Name)
	assert.Equal(t, "house-price-retrain-job-20261019-143005", handle.DisplayName)
	assert.Equal(t, "JOB_STATE_QUEUED", handle.State)

	requests := fake.received()
	require.Len(t, requests, 1)
	assert.Equal(t, "projects/my-project/locations/us-central1", requests[0].GetParent())
	spec := requests[0].GetCustomJob().GetJobSpec()
	assert.Equal(t, "trainer@my-project.iam.gserviceaccount.com", spec.GetServiceAccount())
	assert.Equal(t, []string{"--data-path=gs://my-bucket/data/houses.csv", "--model-dir=gs://my-bucket/models/"},
		spec.GetWorkerPoolSpecs()[0].GetContainerSpec().GetArgs())

	_, err = submitter.Submit(context.Background(), testJob())
	require.NoError(t, err)
	assert.Len(t, fake.received(), 2)
}

func TestSubmitPlatformError(t *testing.T) {
	fake := &fakeJobService{err: status.Error(codes.PermissionDenied, "permission denied on project")}
	submitter := vertex.NewSubmitter(vertex.Options{Endpoint: startJobService(t, fake)})
	defer submitter.Close()

	_, err := submitter.Submit(context.Background(), testJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied on project")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestRegionalEndpoint(t *testing.T) {
	assert.Equal(t, "europe-west4-aiplatform.googleapis.com:443", vertex.RegionalEndpoint("europe-west4"))
}
