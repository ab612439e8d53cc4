package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	RetrainQueue    = "retrain_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	// Id is the broker assigned message id, empty if there is none.
	Id() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type RetrainTaskPayload struct {
	RequestId uuid.UUID
	Reason    string

	// Message is forwarded to the trigger handler as the event body.
	Message string
}

type Publisher interface {
	PublishRetrainTask(ctx context.Context, payload RetrainTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
