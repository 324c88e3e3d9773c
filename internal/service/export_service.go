package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/internal/models"
	appErrors "github.com/wanderline/auth-api/pkg/errors"
	"github.com/wanderline/auth-api/pkg/export"
	"github.com/wanderline/auth-api/pkg/storage"
)

var eventExportColumns = []string{"id", "event_type", "severity", "description", "user_id", "email", "ip_address", "user_agent", "created_at"}

// ExportService renders the audit trail to CSV files and hands out
// short-lived signed download links. Old files are swept opportunistically
// on each export rather than by a scheduler.
type ExportService struct {
	events    eventStore
	audit     *EventService
	store     *storage.Store
	signer    *storage.Signer
	logger    *zap.Logger
	retention time.Duration
}

// NewExportService constructs an ExportService.
func NewExportService(events eventStore, audit *EventService, store *storage.Store, signer *storage.Signer, logger *zap.Logger, retention time.Duration) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		events:    events,
		audit:     audit,
		store:     store,
		signer:    signer,
		logger:    logger,
		retention: retention,
	}
}

// ExportEvents writes the filtered events to a CSV file and returns the
// signed download token for it.
func (s *ExportService) ExportEvents(ctx context.Context, filter models.EventFilter, actor models.Actor) (*models.EventExport, error) {
	events, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events for export")
	}

	table := export.Table{Columns: eventExportColumns, Rows: make([][]string, 0, len(events))}
	for _, e := range events {
		userID := ""
		if e.UserID != nil {
			userID = *e.UserID
		}
		table.Rows = append(table.Rows, []string{
			e.ID, e.EventType, string(e.Severity), e.Description,
			userID, e.Email, e.IPAddress, e.UserAgent,
			e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	var buf bytes.Buffer
	if err := export.CSV(&buf, table); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	name := fmt.Sprintf("events-%s-%s.csv", time.Now().UTC().Format("20060102"), uuid.NewString())
	if err := s.store.Write(name, buf.Bytes()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Sign(name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	if removed, err := s.store.Sweep(s.retention); err != nil {
		s.logger.Warn("export sweep failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("swept expired exports", zap.Int("removed", removed))
	}

	s.audit.Log(ctx, models.EventAuditExported, models.SeverityMedium, "audit trail exported", actor, map[string]interface{}{
		"file":        name,
		"event_count": len(events),
	})

	return &models.EventExport{
		FileName:      name,
		EventCount:    len(events),
		DownloadToken: token,
		ExpiresAt:     expiresAt,
	}, nil
}

// OpenExport validates a download token and opens the file it names.
// Callers own the returned handle.
func (s *ExportService) OpenExport(token string) (*os.File, error) {
	name, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	file, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	return file, nil
}
