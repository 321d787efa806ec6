package gormstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowRoundTripKeepsMarkers(t *testing.T) {
	m := domain.NewMessage("m1", "u1", "u2", domain.MessagePayload{Image: "ref"}, time.Unix(100, 0))
	m.Apply(domain.DeletionMarkers{HideFor: "u1", ForEveryone: true})

	row := toRow(m)
	assert.Len(t, row.Deletions, 1)
	assert.Nil(t, row.Text)

	back := fromRow(*row)
	assert.Equal(t, []domain.UserID{"u1"}, back.DeletedFor)
	assert.True(t, back.DeletedForEveryone)
	assert.Equal(t, "ref", *back.Image)
}

// Runs against a live server only when DUET_TEST_MYSQL_DSN is set; the DSN
// needs parseTime=true.
func TestQueriesAgainstServer(t *testing.T) {
	dsn := os.Getenv("DUET_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("DUET_TEST_MYSQL_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	s, err := Open(dsn)
	require.NoError(t, err)

	run := uuid.NewString()[:8]
	alice, bob := domain.UserID("a-"+run), domain.UserID("b-"+run)
	id := func(n string) domain.MessageID { return domain.MessageID(n + "-" + run) }
	t.Cleanup(func() {
		s.db.Where("message_id LIKE ?", "%-"+run).Delete(&MessageDeletion{})
		s.db.Where("id LIKE ?", "%-"+run).Delete(&Message{})
		s.db.Where("id IN ?", []string{string(alice), string(bob)}).Delete(&User{})
		_ = s.Close()
	})
	require.NoError(t, s.db.Create(&[]User{{ID: string(alice), FullName: "Alice"}, {ID: string(bob), FullName: "Bob"}}).Error)

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Save(ctx, domain.NewMessage(id("m1"), alice, bob, domain.MessagePayload{Text: "hi"}, base)))
	require.NoError(t, s.Save(ctx, domain.NewMessage(id("m2"), bob, alice, domain.MessagePayload{Text: "yo"}, base.Add(time.Second))))

	got, err := s.FindByID(ctx, id("m1"))
	require.NoError(t, err)
	assert.Equal(t, "hi", *got.Text)
	assert.Empty(t, got.DeletedFor)

	_, err = s.UpdateDeletionMarkers(ctx, id("m1"), domain.DeletionMarkers{HideFor: bob})
	require.NoError(t, err)
	got, err = s.UpdateDeletionMarkers(ctx, id("m1"), domain.DeletionMarkers{HideFor: bob, ForEveryone: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{bob}, got.DeletedFor)
	assert.True(t, got.DeletedForEveryone)

	msgs, err := s.ListConversation(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, id("m1"), msgs[0].ID)
	assert.Equal(t, id("m2"), msgs[1].ID)

	users, err := s.ListUsersExcept(ctx, alice)
	require.NoError(t, err)
	for _, u := range users {
		assert.NotEqual(t, alice, u.ID)
	}

	_, err = s.FindByID(ctx, id("missing"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.UpdateDeletionMarkers(ctx, id("missing"), domain.DeletionMarkers{ForEveryone: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
