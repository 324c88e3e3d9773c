package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/pkg/storage"
)

func newExportService(t *testing.T, events eventStore) *ExportService {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSigner("export-secret-export-secret-1234", time.Hour)
	audit := NewEventService(events, zap.NewNop())
	return NewExportService(events, audit, store, signer, zap.NewNop(), 24*time.Hour)
}

func TestExportEventsRoundTrip(t *testing.T) {
	events := &mockEventStore{}
	uid := "u1"
	events.events = append(events.events, &models.SecurityEvent{
		ID: "e1", EventType: models.EventLoginFailure, Severity: models.SeverityLow,
		Description: "login failed", UserID: &uid, Email: "user@example.com",
		IPAddress: "10.0.0.1", UserAgent: "agent", CreatedAt: time.Now().UTC(),
	})

	svc := newExportService(t, events)

	result, err := svc.ExportEvents(context.Background(), models.EventFilter{}, models.Actor{UserID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventCount)
	assert.NotEmpty(t, result.DownloadToken)
	assert.True(t, strings.HasSuffix(result.FileName, ".csv"))

	// the export itself lands in the audit trail
	assert.Contains(t, events.types(), models.EventAuditExported)

	file, err := svc.OpenExport(result.DownloadToken)
	require.NoError(t, err)
	defer file.Close()

	body, err := io.ReadAll(file)
	require.NoError(t, err)
	content := string(body)
	assert.Contains(t, content, "id,event_type,severity")
	assert.Contains(t, content, "user@example.com")
	assert.Contains(t, content, "LOGIN_FAILURE")
}

func TestOpenExportRejectsBadToken(t *testing.T) {
	svc := newExportService(t, &mockEventStore{})

	_, err := svc.OpenExport("not-a-token")
	require.Error(t, err)
}
