package core

import (
	"context"

	"github.com/dkeye/Duet/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/dkeye/Duet/internal/core MessageStore,EventRelay

// MessageStore persists messages and serves the user directory.
// Implementations return domain.ErrNotFound for unknown ids.
type MessageStore interface {
	Save(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	// UpdateDeletionMarkers merges markers with set semantics and returns the updated row.
	UpdateDeletionMarkers(ctx context.Context, id domain.MessageID, d domain.DeletionMarkers) (*domain.Message, error)
	// ListConversation returns raw rows between a and b, oldest first.
	ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
	ListUsersExcept(ctx context.Context, self domain.UserID) ([]domain.User, error)
	Close() error
}

// EventRelay carries a frame to a user that may be connected to another instance.
type EventRelay interface {
	Publish(ctx context.Context, uid domain.UserID, f Frame) error
}
