package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wanderline/auth-api/internal/models"
)

// EventRepository stores the append-only security audit trail.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new instance of EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends one security event.
func (r *EventRepository) Insert(ctx context.Context, e *models.SecurityEvent) error {
	const query = `INSERT INTO security_events (id, event_type, severity, description, user_id, email, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.EventType, e.Severity, e.Description, e.UserID, e.Email, e.IPAddress, e.UserAgent, e.Metadata, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// List returns events matching the filter, newest first.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error) {
	baseQuery := `SELECT id, event_type, severity, description, user_id, email, ip_address, user_agent, metadata, created_at FROM security_events WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.EventType != "" {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", len(args)+1))
		args = append(args, filter.EventType)
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)+1))
		args = append(args, filter.Severity)
	}
	if filter.Email != "" {
		conditions = append(conditions, fmt.Sprintf("email = $%d", len(args)+1))
		args = append(args, filter.Email)
	}
	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.Since)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	baseQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	var events []models.SecurityEvent
	if err := r.db.SelectContext(ctx, &events, baseQuery, args...); err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	return events, nil
}
