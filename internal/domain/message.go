package domain

import (
	"slices"
	"strings"
	"time"
)

type MessageID string

// Message is soft-deleted only: the row always survives as a tombstone.
type Message struct {
	ID                 MessageID `json:"id"`
	SenderID           UserID    `json:"senderId"`
	ReceiverID         UserID    `json:"receiverId"`
	Text               *string   `json:"text"`
	Image              *string   `json:"image"`
	CreatedAt          time.Time `json:"createdAt"`
	DeletedFor         []UserID  `json:"deletedFor"`
	DeletedForEveryone bool      `json:"deletedForEveryone"`
}

// MessagePayload is what a sender submits. Image is an already-uploaded reference.
type MessagePayload struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

func (p MessagePayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" && strings.TrimSpace(p.Image) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// NewMessage builds an unsaved message; the store assigns nothing else.
func NewMessage(id MessageID, sender, receiver UserID, p MessagePayload, now time.Time) *Message {
	m := &Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		CreatedAt:  now.UTC(),
		DeletedFor: []UserID{},
	}
	if p.Text != "" {
		text := p.Text
		m.Text = &text
	}
	if p.Image != "" {
		img := p.Image
		m.Image = &img
	}
	return m
}

// DeletionMarkers is an additive update, markers are never cleared.
type DeletionMarkers struct {
	HideFor     UserID
	ForEveryone bool
}

func (m *Message) Participant(u UserID) bool {
	return m.SenderID == u || m.ReceiverID == u
}

// Counterpart returns the other side of the conversation relative to u.
func (m *Message) Counterpart(u UserID) UserID {
	if m.SenderID == u {
		return m.ReceiverID
	}
	return m.SenderID
}

func (m *Message) HiddenFor(u UserID) bool {
	return slices.Contains(m.DeletedFor, u)
}

// Apply merges markers into m with set semantics.
func (m *Message) Apply(d DeletionMarkers) {
	if d.HideFor != "" && !m.HiddenFor(d.HideFor) {
		m.DeletedFor = append(m.DeletedFor, d.HideFor)
	}
	if d.ForEveryone {
		m.DeletedForEveryone = true
	}
}

// ViewFor applies the read-path rule for one viewer. ok is false when the
// message must be excluded from the viewer's listing.
func (m Message) ViewFor(viewer UserID) (Message, bool) {
	if m.HiddenFor(viewer) {
		return Message{}, false
	}
	if m.DeletedForEveryone {
		m.Text = nil
		m.Image = nil
	}
	if m.DeletedFor == nil {
		m.DeletedFor = []UserID{}
	} else {
		m.DeletedFor = slices.Clone(m.DeletedFor)
	}
	return m, true
}

// VisibleTo runs ViewFor over a listing, preserving order.
func VisibleTo(msgs []Message, viewer UserID) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if v, ok := m.ViewFor(viewer); ok {
			out = append(out, v)
		}
	}
	return out
}
