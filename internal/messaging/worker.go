package messaging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"retrain-trigger/internal/trigger"
)

type EventHandler interface {
	Handle(ctx context.Context, event trigger.Event) error
}

// Worker feeds queued retrain triggers to the handler, one at a time.
type Worker struct {
	receiver Receiver
	handler  EventHandler
}

func NewWorker(receiver Receiver, handler EventHandler) *Worker {
	return &Worker{receiver: receiver, handler: handler}
}

// Run processes tasks until ctx is cancelled or the receiver is closed.
func (w *Worker) Run(ctx context.Context) {
	tasks := w.receiver.Tasks()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "reason", ctx.Err())
			return
		case task, ok := <-tasks:
			if !ok {
				slog.Info("task channel closed, worker stopping")
				return
			}
			w.process(ctx, task)
		}
	}
}

func EventFromTask(task Task) (trigger.Event, error) {
	var payload RetrainTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return trigger.Event{}, err
	}

	event := trigger.Event{
		EventID:   task.Id(),
		EventType: "queue." + task.Type(),
	}
	if event.EventID == "" {
		event.EventID = payload.RequestId.String()
	}
	if payload.Message != "" {
		event.Data = base64.StdEncoding.EncodeToString([]byte(payload.Message))
	}
	return event, nil
}

func (w *Worker) process(ctx context.Context, task Task) {
	if task.Type() != RetrainQueue {
		slog.Error("received task from unknown queue", "queue", task.Type())
		w.reject(task)
		return
	}

	event, err := EventFromTask(task)
	if err != nil {
		slog.Error("error unmarshalling retrain task", "error", err, "body", string(task.Payload()))
		w.reject(task)
		return
	}

	err = w.handler.Handle(ctx, event)
	switch {
	case err == nil:
		if err := task.Ack(); err != nil {
			slog.Error("error acking retrain task", "event_id", event.EventID, "error", err)
		}
	case trigger.IsSubmissionError(err):
		// No local retry, broker policy decides what happens next.
		if err := task.Nack(); err != nil {
			slog.Error("error nacking retrain task", "event_id", event.EventID, "error", err)
		}
	default:
		slog.Error("retrain task cannot succeed as delivered", "event_id", event.EventID, "error", err)
		w.reject(task)
	}
}

func (w *Worker) reject(task Task) {
	if err := task.Reject(); err != nil {
		slog.Error("error rejecting task", "queue", task.Type(), "error", err)
	}
}
