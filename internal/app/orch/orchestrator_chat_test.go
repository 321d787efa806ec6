package orch

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/core/mocks"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/mock/gomock"
)

func chatOrch(t *testing.T) (*Orchestrator, *mocks.MockMessageStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	o := newTestOrch(t, store)
	o.NewID = func() domain.MessageID { return "m1" }
	return o, store
}

func strp(s string) *string { return &s }

func TestSendMessageLivePush(t *testing.T) {
	o, store := chatOrch(t)
	connect(t, o, "u1")
	c2 := connect(t, o, "u2")

	store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *domain.Message) error {
		assert.Equal(t, domain.UserID("u1"), m.SenderID)
		assert.Equal(t, domain.UserID("u2"), m.ReceiverID)
		return nil
	})

	m, err := o.SendMessage(context.Background(), "u1", "u2", domain.MessagePayload{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageID("m1"), m.ID)

	pushed := c2.of(protocol.TypeNewMessage)
	require.Len(t, pushed, 1)
	assert.Equal(t, "hello", pushed[0].Get("text").String())
	assert.Equal(t, "m1", pushed[0].Get("id").String())
}

func TestSendMessageOfflineUsesRelay(t *testing.T) {
	o, store := chatOrch(t)
	relay := mocks.NewMockEventRelay(gomock.NewController(t))
	o.Relay = relay
	c1 := connect(t, o, "u1")

	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	relay.EXPECT().Publish(gomock.Any(), domain.UserID("u2"), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ domain.UserID, f core.Frame) error {
			assert.Equal(t, protocol.TypeNewMessage, gjson.GetBytes(f, "type").String())
			return nil
		})

	_, err := o.SendMessage(context.Background(), "u1", "u2", domain.MessagePayload{Image: "https://cdn/p.png"})
	require.NoError(t, err)
	assert.Empty(t, c1.of(protocol.TypeNewMessage))
}

func TestSendMessageOfflineWithoutRelay(t *testing.T) {
	o, store := chatOrch(t)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	m, err := o.SendMessage(context.Background(), "u1", "u2", domain.MessagePayload{Text: "later"})
	require.NoError(t, err)
	require.NotNil(t, m.Text)
	assert.Equal(t, "later", *m.Text)
}

func TestSendMessageStoreErrorPushesNothing(t *testing.T) {
	o, store := chatOrch(t)
	c2 := connect(t, o, "u2")
	boom := errors.New("db down")
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(boom)

	_, err := o.SendMessage(context.Background(), "u1", "u2", domain.MessagePayload{Text: "hi"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, c2.of(protocol.TypeNewMessage))
}

func TestSendMessageValidation(t *testing.T) {
	o, _ := chatOrch(t)
	_, err := o.SendMessage(context.Background(), "u1", "u2", domain.MessagePayload{})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	_, err = o.SendMessage(context.Background(), "u1", "undefined", domain.MessagePayload{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestDeleteForEveryoneLive(t *testing.T) {
	o, store := chatOrch(t)
	c1 := connect(t, o, "u1")
	c2 := connect(t, o, "u2")
	msg := &domain.Message{ID: "m1", SenderID: "u1", ReceiverID: "u2", Text: strp("oops")}

	store.EXPECT().FindByID(gomock.Any(), domain.MessageID("m1")).Return(msg, nil)
	store.EXPECT().UpdateDeletionMarkers(gomock.Any(), domain.MessageID("m1"), domain.DeletionMarkers{ForEveryone: true}).
		Return(msg, nil)

	ev, err := o.DeleteForEveryone(context.Background(), "m1", "u1")
	require.NoError(t, err)
	assert.True(t, ev.DeletedForEveryone)

	got := c2.of(protocol.TypeMessageDeleted)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].Get("messageId").String())
	assert.True(t, got[0].Get("deletedForEveryone").Bool())
	assert.Empty(t, c1.of(protocol.TypeMessageDeleted))
}

func TestDeleteForEveryoneOnlySender(t *testing.T) {
	o, store := chatOrch(t)
	msg := &domain.Message{ID: "m1", SenderID: "u1", ReceiverID: "u2"}
	store.EXPECT().FindByID(gomock.Any(), domain.MessageID("m1")).Return(msg, nil)

	_, err := o.DeleteForEveryone(context.Background(), "m1", "u2")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDeleteForMe(t *testing.T) {
	o, store := chatOrch(t)
	c1 := connect(t, o, "u1")
	msg := &domain.Message{ID: "m1", SenderID: "u1", ReceiverID: "u2"}

	store.EXPECT().FindByID(gomock.Any(), domain.MessageID("m1")).Return(msg, nil).Times(2)
	store.EXPECT().UpdateDeletionMarkers(gomock.Any(), domain.MessageID("m1"), domain.DeletionMarkers{HideFor: "u2"}).
		Return(msg, nil)

	require.NoError(t, o.DeleteForMe(context.Background(), "m1", "u2"))
	assert.ErrorIs(t, o.DeleteForMe(context.Background(), "m1", "u3"), domain.ErrForbidden)
	assert.Empty(t, c1.of(protocol.TypeMessageDeleted))

	store.EXPECT().FindByID(gomock.Any(), domain.MessageID("nope")).Return(nil, domain.ErrNotFound)
	assert.ErrorIs(t, o.DeleteForMe(context.Background(), "nope", "u1"), domain.ErrNotFound)
}

func TestConversationAppliesVisibility(t *testing.T) {
	o, store := chatOrch(t)
	rows := []domain.Message{
		{ID: "a", SenderID: "u1", ReceiverID: "u2", Text: strp("one")},
		{ID: "b", SenderID: "u2", ReceiverID: "u1", Text: strp("two"), DeletedFor: []domain.UserID{"u1"}},
		{ID: "c", SenderID: "u1", ReceiverID: "u2", Text: strp("three"), Image: strp("img"), DeletedForEveryone: true},
	}
	store.EXPECT().ListConversation(gomock.Any(), domain.UserID("u1"), domain.UserID("u2")).Return(rows, nil)

	got, err := o.Conversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.MessageID("a"), got[0].ID)
	assert.Equal(t, domain.MessageID("c"), got[1].ID)
	assert.Nil(t, got[1].Text)
	assert.Nil(t, got[1].Image)
	assert.True(t, got[1].DeletedForEveryone)
}

func TestUsersPropagatesStoreError(t *testing.T) {
	o, store := chatOrch(t)
	boom := errors.New("timeout")
	store.EXPECT().ListUsersExcept(gomock.Any(), domain.UserID("u1")).Return(nil, boom)

	_, err := o.Users(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
}
