package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/internal/models"
)

type eventStore interface {
	Insert(ctx context.Context, e *models.SecurityEvent) error
	List(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error)
}

// EventService writes the append-only security audit trail. Logging is
// fail-soft on purpose: a failure to persist an event is logged locally and
// never propagated, so authentication availability does not depend on audit
// availability.
type EventService struct {
	events eventStore
	logger *zap.Logger
}

// NewEventService constructs an EventService.
func NewEventService(events eventStore, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{events: events, logger: logger}
}

// Log records a security event and returns its id. Never returns an error.
func (s *EventService) Log(ctx context.Context, eventType string, severity models.EventSeverity, description string, actor models.Actor, metadata map[string]interface{}) string {
	event := &models.SecurityEvent{
		ID:          uuid.NewString(),
		EventType:   eventType,
		Severity:    severity,
		Description: description,
		Email:       actor.Email,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		CreatedAt:   time.Now().UTC(),
	}
	if actor.UserID != "" {
		uid := actor.UserID
		event.UserID = &uid
	}
	if len(metadata) > 0 {
		payload, err := json.Marshal(metadata)
		if err != nil {
			s.logger.Warn("security event metadata not serialisable", zap.String("event_type", eventType), zap.Error(err))
		} else {
			event.Metadata = payload
		}
	}

	if err := s.events.Insert(ctx, event); err != nil {
		s.logger.Error("failed to persist security event",
			zap.String("event_type", eventType),
			zap.String("severity", string(severity)),
			zap.String("description", description),
			zap.Error(err),
		)
	}

	return event.ID
}

// List returns recorded events for operator views.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error) {
	return s.events.List(ctx, filter)
}
