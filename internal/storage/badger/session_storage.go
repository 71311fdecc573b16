package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
)

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

// SaveSession inserts or replaces a session and stamps UpdatedAt
func (s *SessionStorage) SaveSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	if err := s.db.Store().Upsert(session.ID, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (s *SessionStorage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.Store().Get(id, &session)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes a session
func (s *SessionStorage) DeleteSession(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.Session{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions returns every session, oldest first
func (s *SessionStorage) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []models.Session
	if err := s.db.Store().Find(&sessions, nil); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sortedByCreation(sessions), nil
}

// ListIdleSessions returns sessions not updated since cutoff
func (s *SessionStorage) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	var sessions []models.Session
	query := badgerhold.Where("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&sessions, query); err != nil {
		return nil, fmt.Errorf("failed to list idle sessions: %w", err)
	}
	return sortedByCreation(sessions), nil
}

func sortedByCreation(sessions []models.Session) []*models.Session {
	out := make([]*models.Session, len(sessions))
	for i := range sessions {
		out[i] = &sessions[i]
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
