package mongostore

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

// Runs against a live server only when DUET_TEST_MONGO_URI is set.
func TestMarkersAgainstServer(t *testing.T) {
	uri := os.Getenv("DUET_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DUET_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	s, err := Open(ctx, uri, "duet_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.messages.Database().Drop(context.Background())
		_ = s.Close()
	})

	m := domain.NewMessage("m1", "u1", "u2", domain.MessagePayload{Text: "hi"}, time.Now())
	require.NoError(t, s.Save(ctx, m))

	_, err = s.UpdateDeletionMarkers(ctx, "m1", domain.DeletionMarkers{HideFor: "u2"})
	require.NoError(t, err)
	got, err := s.UpdateDeletionMarkers(ctx, "m1", domain.DeletionMarkers{HideFor: "u2", ForEveryone: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u2"}, got.DeletedFor)
	assert.True(t, got.DeletedForEveryone)

	msgs, err := s.ListConversation(ctx, "u2", "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocMappingDefaultsDeletedFor(t *testing.T) {
	m := fromDoc(messageDoc{ID: "m1", SenderID: "u1", ReceiverID: "u2"})
	assert.NotNil(t, m.DeletedFor)
	assert.Empty(t, m.DeletedFor)
}
