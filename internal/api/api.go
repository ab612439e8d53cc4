package api

import (
	"log/slog"
	"net/http"
	"retrain-trigger/internal/messaging"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type RetrainRequest struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type RetrainResponse struct {
	RequestId uuid.UUID
}

const maxReasonLength = 512

// TriggerService accepts manual retrain requests and queues them for the
// worker.
type TriggerService struct {
	publisher messaging.Publisher
}

func NewTriggerService(publisher messaging.Publisher) *TriggerService {
	return &TriggerService{publisher: publisher}
}

func (s *TriggerService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/retrain", RestHandler(s.Retrain))
}

func (s *TriggerService) Retrain(r *http.Request) (any, error) {
	req, err := ParseRequest[RetrainRequest](r)
	if err != nil {
		return nil, err
	}

	req.Reason = strings.TrimSpace(req.Reason)
	if len(req.Reason) > maxReasonLength {
		return nil, CodedErrorf(http.StatusBadRequest, "reason must be at most %d characters", maxReasonLength)
	}

	payload := messaging.RetrainTaskPayload{
		RequestId: uuid.New(),
		Reason:    req.Reason,
		Message:   req.Message,
	}

	if err := s.publisher.PublishRetrainTask(r.Context(), payload); err != nil {
		slog.Error("error publishing retrain task", "request_id", payload.RequestId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue retrain request")
	}

	slog.Info("queued retrain request", "request_id", payload.RequestId, "reason", payload.Reason)

	return RetrainResponse{RequestId: payload.RequestId}, nil
}
