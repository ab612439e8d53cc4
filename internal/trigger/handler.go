package trigger

import (
	"context"
	"errors"
	"log/slog"
	"retrain-trigger/internal/config"
	"retrain-trigger/internal/training"
	"runtime/debug"
	"time"

	"google.golang.org/grpc/status"
)

// JobSubmitter hands a job to the training platform. Submit must return as
// soon as the platform has accepted the job, without waiting on its outcome.
type JobSubmitter interface {
	Submit(ctx context.Context, job training.JobRequest) (*training.JobHandle, error)
}

// StagingVerifier checks that a staging location is usable before a job is
// submitted against it.
type StagingVerifier interface {
	VerifyStaging(ctx context.Context, location string) error
}

type Handler struct {
	cfg       config.Config
	submitter JobSubmitter
	verifier  StagingVerifier
	now       func() time.Time
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func WithStagingVerifier(v StagingVerifier) Option {
	return func(h *Handler) {
		h.verifier = v
	}
}

func NewHandler(cfg config.Config, submitter JobSubmitter, opts ...Option) *Handler {
	h := &Handler{cfg: cfg, submitter: submitter, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one trigger event. It returns a *ConfigError when the job
// cannot be described, a *SubmissionError when the platform did not accept
// it, and a plain error when the event payload cannot be decoded.
func (h *Handler) Handle(ctx context.Context, event Event) error {
	slog.Info("retrain triggered", "event_id", event.EventID, "event_type", event.EventType)

	if event.HasData() {
		message, err := event.DecodeData()
		if err != nil {
			slog.Error("error decoding trigger payload", "event_id", event.EventID, "error", err)
			return err
		}
		slog.Info("received trigger message", "event_id", event.EventID, "message", message)
	} else {
		slog.Info("trigger carried no payload (manual or scheduled trigger)", "event_id", event.EventID)
	}

	if missing := h.cfg.Missing(); len(missing) > 0 {
		err := &ConfigError{Fields: missing}
		slog.Error("missing configuration for training job", "missing", missing)
		return err
	}

	job, err := training.BuildRequest(h.cfg, h.now())
	if err != nil {
		cerr := &ConfigError{Err: err}
		var ferr *training.FieldError
		if errors.As(err, &ferr) {
			cerr = &ConfigError{Fields: []string{ferr.Field}, Err: ferr.Err}
		}
		slog.Error("error building training job", "error", cerr)
		return cerr
	}

	if h.verifier != nil {
		if err := h.verifier.VerifyStaging(ctx, job.StagingLocation); err != nil {
			return h.submissionFailed(job, err)
		}
	}

	slog.Info("launching custom training job", "display_name", job.DisplayName, "project", job.Project, "region", job.Region, "staging", job.StagingLocation)

	handle, err := h.submitter.Submit(ctx, job)
	if err != nil {
		return h.submissionFailed(job, err)
	}

	if handle == nil {
		handle = &training.JobHandle{DisplayName: job.DisplayName}
	}
	slog.Info("training job launched", "display_name", job.DisplayName, "job", handle.Name, "state", handle.State)
	return nil
}

func (h *Handler) submissionFailed(job training.JobRequest, err error) error {
	slog.Error("error launching training job",
		"display_name", job.DisplayName,
		"error", err,
		"code", status.Code(err).String(),
		"handler_stack", string(debug.Stack()),
	)
	return &SubmissionError{DisplayName: job.DisplayName, Err: err}
}

func IsConfigError(err error) bool {
	var cerr *ConfigError
	return errors.As(err, &cerr)
}

func IsSubmissionError(err error) bool {
	var serr *SubmissionError
	return errors.As(err, &serr)
}
