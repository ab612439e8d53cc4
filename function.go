// Package retraintrigger exposes the Cloud Functions entry points that launch
// a Vertex AI custom training job when a Pub/Sub message arrives.
package retraintrigger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"retrain-trigger/internal/config"
	"retrain-trigger/internal/gcs"
	"retrain-trigger/internal/logging"
	"retrain-trigger/internal/trigger"
	"retrain-trigger/internal/vertex"
	"sync"

	"cloud.google.com/go/functions/metadata"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
)

func init() {
	logging.Setup(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	functions.CloudEvent("TriggerRetraining", TriggerRetraining)
}

// PubSubMessage is the payload of a Pub/Sub event. Data holds the base64
// encoded message body.
type PubSubMessage struct {
	Data        string            `json:"data,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	PublishTime string            `json:"publishTime,omitempty"`
}

// MessagePublishedData is the CloudEvent data for
// google.cloud.pubsub.topic.v1.messagePublished.
type MessagePublishedData struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

var (
	handlerOnce sync.Once
	handler     *trigger.Handler
	handlerErr  error
)

// retrainHandler builds the handler once per function instance. Missing
// training settings are not a load error; they are reported per invocation.
func retrainHandler() (*trigger.Handler, error) {
	handlerOnce.Do(func() {
		handler, handlerErr = buildHandler(config.Load())
	})
	return handler, handlerErr
}

// buildHandler reports a settings parse failure as a *trigger.ConfigError,
// the same kind an invocation returns for missing settings.
func buildHandler(cfg config.Config, err error) (*trigger.Handler, error) {
	if err != nil {
		return nil, &trigger.ConfigError{Err: err}
	}
	return NewHandler(cfg), nil
}

// NewHandler wires the Vertex AI submitter, and the staging bucket check
// when enabled, into a trigger handler.
func NewHandler(cfg config.Config) *trigger.Handler {
	var opts []trigger.Option
	if cfg.VerifyStagingBucket {
		opts = append(opts, trigger.WithStagingVerifier(gcs.NewBucketVerifier()))
	}
	submitter := vertex.NewSubmitter(vertex.Options{Endpoint: cfg.VertexEndpoint})
	return trigger.NewHandler(cfg, submitter, opts...)
}

type eventHandler interface {
	Handle(ctx context.Context, event trigger.Event) error
}

// TriggerRetraining is the CloudEvent entry point for Pub/Sub triggers.
func TriggerRetraining(ctx context.Context, e event.Event) error {
	h, err := retrainHandler()
	if err != nil {
		slog.Error("error loading configuration", "error", err)
		return err
	}
	return handleCloudEvent(ctx, h, e)
}

func handleCloudEvent(ctx context.Context, h eventHandler, e event.Event) error {
	var data MessagePublishedData
	if len(e.Data()) > 0 {
		if err := e.DataAs(&data); err != nil {
			slog.Error("error decoding pubsub event", "event_id", e.ID(), "error", err)
			return fmt.Errorf("error decoding pubsub event: %w", err)
		}
	}

	return h.Handle(ctx, trigger.Event{
		EventID:   e.ID(),
		EventType: e.Type(),
		Data:      data.Message.Data,
	})
}

// RetrainBackground is the entry point for the background function
// signature, where event metadata travels on the context.
func RetrainBackground(ctx context.Context, m PubSubMessage) error {
	h, err := retrainHandler()
	if err != nil {
		slog.Error("error loading configuration", "error", err)
		return err
	}
	return handleBackground(ctx, h, m)
}

func handleBackground(ctx context.Context, h eventHandler, m PubSubMessage) error {
	meta, err := metadata.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("error reading event metadata: %w", err)
	}

	return h.Handle(ctx, trigger.Event{
		EventID:   meta.EventID,
		EventType: meta.EventType,
		Data:      m.Data,
	})
}
