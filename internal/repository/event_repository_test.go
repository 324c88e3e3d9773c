package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderline/auth-api/internal/models"
)

func TestEventRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec("INSERT INTO security_events").
		WithArgs("e1", models.EventLoginFailure, models.SeverityLow, "login failed", nil, "user@example.com", "10.0.0.1", "agent", []byte(nil), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), &models.SecurityEvent{
		ID: "e1", EventType: models.EventLoginFailure, Severity: models.SeverityLow,
		Description: "login failed", Email: "user@example.com", IPAddress: "10.0.0.1",
		UserAgent: "agent", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryListDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	rows := sqlmock.NewRows([]string{"id", "event_type", "severity", "description", "user_id", "email", "ip_address", "user_agent", "metadata", "created_at"}).
		AddRow("e1", "LOGIN_FAILURE", "low", "login failed", nil, "user@example.com", "10.0.0.1", "agent", nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM security_events WHERE 1=1 ORDER BY created_at DESC LIMIT 100")).
		WillReturnRows(rows)

	events, err := repo.List(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "LOGIN_FAILURE", events[0].EventType)
}

func TestEventRepositoryListFiltered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	since := time.Now().Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("event_type = $1 AND severity = $2 AND email = $3 AND created_at >= $4 ORDER BY created_at DESC LIMIT 50")).
		WithArgs("ACCOUNT_LOCKED", models.SeverityHigh, "user@example.com", since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "severity", "description", "user_id", "email", "ip_address", "user_agent", "metadata", "created_at"}))

	events, err := repo.List(context.Background(), models.EventFilter{
		EventType: "ACCOUNT_LOCKED",
		Severity:  models.SeverityHigh,
		Email:     "user@example.com",
		Since:     &since,
		Limit:     50,
	})
	require.NoError(t, err)
	assert.Empty(t, events)
}
