package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/common"
	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
)

func newTestStorage(t *testing.T) interfaces.SessionStorage {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager.SessionStorage()
}

func TestSessionStorage_SaveAndGet(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	session := &models.Session{
		ID:    "s1",
		Image: &models.SessionFile{Name: "chart.png", Path: "/tmp/chart.png", Size: 10},
		History: []models.ChatMessage{
			{Role: models.RoleAssistant, Content: "The price trend is upward."},
		},
	}
	require.NoError(t, storage.SaveSession(ctx, session))
	assert.False(t, session.CreatedAt.IsZero())
	assert.False(t, session.UpdatedAt.IsZero())

	got, err := storage.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/chart.png", got.ImagePath())
	assert.Empty(t, got.DataPath())
	require.Len(t, got.History, 1)
	assert.Equal(t, "The price trend is upward.", got.History[0].Content)
}

func TestSessionStorage_SavePreservesCreatedAt(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	session := &models.Session{ID: "s1"}
	require.NoError(t, storage.SaveSession(ctx, session))
	created := session.CreatedAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, storage.SaveSession(ctx, session))

	got, err := storage.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.After(created))
}

func TestSessionStorage_NotFound(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	_, err := storage.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)

	assert.ErrorIs(t, storage.DeleteSession(ctx, "missing"), interfaces.ErrSessionNotFound)
	assert.Error(t, storage.SaveSession(ctx, &models.Session{}))
}

func TestSessionStorage_DeleteAndList(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, storage.SaveSession(ctx, &models.Session{ID: id}))
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, storage.DeleteSession(ctx, "b"))

	sessions, err := storage.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].ID)
	assert.Equal(t, "c", sessions[1].ID)
}

func TestSessionStorage_ListIdleSessions(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveSession(ctx, &models.Session{ID: "old"}))
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, storage.SaveSession(ctx, &models.Session{ID: "fresh"}))

	idle, err := storage.ListIdleSessions(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, "old", idle[0].ID)
}
