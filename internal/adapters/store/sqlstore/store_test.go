package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "duet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveFindAndMarkers(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	m := domain.NewMessage("m1", "u1", "u2", domain.MessagePayload{Text: "hi"}, now)
	require.NoError(t, s.Save(ctx, m))

	got, err := s.FindByID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got.Text)
	assert.Equal(t, "hi", *got.Text)
	assert.Nil(t, got.Image)
	assert.Equal(t, now, got.CreatedAt)
	assert.Empty(t, got.DeletedFor)

	_, err = s.UpdateDeletionMarkers(ctx, "m1", domain.DeletionMarkers{HideFor: "u2"})
	require.NoError(t, err)
	got, err = s.UpdateDeletionMarkers(ctx, "m1", domain.DeletionMarkers{HideFor: "u2"})
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u2"}, got.DeletedFor)

	got, err = s.UpdateDeletionMarkers(ctx, "m1", domain.DeletionMarkers{ForEveryone: true})
	require.NoError(t, err)
	assert.True(t, got.DeletedForEveryone)
	require.NotNil(t, got.Text, "tombstoned rows keep their content")

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.UpdateDeletionMarkers(ctx, "missing", domain.DeletionMarkers{ForEveryone: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListConversationOrderAndScope(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, domain.NewMessage("b", "u2", "u1", domain.MessagePayload{Text: "second"}, base.Add(time.Second))))
	require.NoError(t, s.Save(ctx, domain.NewMessage("a", "u1", "u2", domain.MessagePayload{Text: "first"}, base)))
	require.NoError(t, s.Save(ctx, domain.NewMessage("x", "u1", "u3", domain.MessagePayload{Text: "other"}, base)))
	_, err := s.UpdateDeletionMarkers(ctx, "b", domain.DeletionMarkers{HideFor: "u1"})
	require.NoError(t, err)

	msgs, err := s.ListConversation(ctx, "u2", "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageID("a"), msgs[0].ID)
	assert.Equal(t, domain.MessageID("b"), msgs[1].ID)
	assert.Equal(t, []domain.UserID{"u1"}, msgs[1].DeletedFor)
	assert.Empty(t, msgs[0].DeletedFor)

	visible := domain.VisibleTo(msgs, "u1")
	require.Len(t, visible, 1)
	assert.Equal(t, domain.MessageID("a"), visible[0].ID)
}

func TestListUsersExcept(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	require.NoError(t, s.UpsertUser(ctx, domain.User{ID: "u1", FullName: "Alice"}))
	require.NoError(t, s.UpsertUser(ctx, domain.User{ID: "u2", FullName: "Bob", Email: "bob@example.com"}))
	require.NoError(t, s.UpsertUser(ctx, domain.User{ID: "u2", FullName: "Bobby", Email: "bob@example.com"}))

	users, err := s.ListUsersExcept(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Bobby", users[0].FullName)
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: Postgres}
	assert.Equal(t, "a = $1 AND b = $2", s.rebind("a = ? AND b = ?"))
	s.dialect = SQLite
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}
