package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/dashnote/internal/models"
)

// ErrSessionNotFound is returned when a session does not exist
var ErrSessionNotFound = errors.New("session not found")

// SessionStorage persists sessions for the lifetime of the process
type SessionStorage interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]*models.Session, error)

	// ListIdleSessions returns sessions not updated since the cutoff
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
}

// StorageManager owns the storage backends
type StorageManager interface {
	SessionStorage() SessionStorage
	Close() error
}
