package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserID(t *testing.T) {
	cases := []struct {
		raw  string
		want UserID
		err  bool
	}{
		{raw: "u1", want: "u1"},
		{raw: "  65f0c1  ", want: "65f0c1"},
		{raw: "", err: true},
		{raw: "undefined", err: true},
		{raw: "null", err: true},
		{raw: "a b", err: true},
		{raw: "line\nbreak", err: true},
		{raw: string(make([]byte, MaxUserIDLen+1)), err: true},
	}
	for _, tc := range cases {
		got, err := ParseUserID(tc.raw)
		if tc.err {
			assert.ErrorIsf(t, err, ErrInvalidIdentity, "raw=%q", tc.raw)
			continue
		}
		require.NoErrorf(t, err, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got)
	}
	assert.True(t, UserID("u1").Valid())
	assert.False(t, UserID(" u1").Valid())
}

func TestPayloadValidate(t *testing.T) {
	assert.ErrorIs(t, MessagePayload{}.Validate(), ErrEmptyMessage)
	assert.ErrorIs(t, MessagePayload{Text: "   "}.Validate(), ErrEmptyMessage)
	assert.NoError(t, MessagePayload{Text: "hi"}.Validate())
	assert.NoError(t, MessagePayload{Image: "https://cdn/x.png"}.Validate())
}

func TestViewForTombstoneAndHidden(t *testing.T) {
	m := NewMessage("m1", "u1", "u2", MessagePayload{Text: "hi", Image: "img"}, time.Now())
	require.NotNil(t, m.Text)
	require.Empty(t, m.DeletedFor)

	m.Apply(DeletionMarkers{ForEveryone: true})
	for _, viewer := range []UserID{"u1", "u2"} {
		v, ok := m.ViewFor(viewer)
		require.True(t, ok)
		assert.Nil(t, v.Text)
		assert.Nil(t, v.Image)
		assert.True(t, v.DeletedForEveryone)
	}
	// the stored row still carries its content
	require.NotNil(t, m.Text)
	assert.Equal(t, "hi", *m.Text)

	m2 := NewMessage("m2", "u1", "u2", MessagePayload{Text: "yo"}, time.Now())
	m2.Apply(DeletionMarkers{HideFor: "u2"})
	m2.Apply(DeletionMarkers{HideFor: "u2"})
	assert.Equal(t, []UserID{"u2"}, m2.DeletedFor)

	_, ok := m2.ViewFor("u2")
	assert.False(t, ok)
	v, ok := m2.ViewFor("u1")
	require.True(t, ok)
	assert.Equal(t, "yo", *v.Text)

	listed := VisibleTo([]Message{*m, *m2}, "u2")
	require.Len(t, listed, 1)
	assert.Equal(t, MessageID("m1"), listed[0].ID)
	assert.Len(t, VisibleTo([]Message{*m, *m2}, "u1"), 2)
}

func TestCounterpart(t *testing.T) {
	m := NewMessage("m1", "u1", "u2", MessagePayload{Text: "hi"}, time.Now())
	assert.Equal(t, UserID("u2"), m.Counterpart("u1"))
	assert.Equal(t, UserID("u1"), m.Counterpart("u2"))
	assert.True(t, m.Participant("u1"))
	assert.False(t, m.Participant("u3"))
}
