package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SendMessage persists a message and pushes it to the receiver when reachable.
// Nothing is pushed if the store fails.
func (o *Orchestrator) SendMessage(ctx context.Context, sender, receiver domain.UserID, p domain.MessagePayload) (domain.Message, error) {
	if !receiver.Valid() {
		return domain.Message{}, domain.ErrInvalidIdentity
	}
	if err := p.Validate(); err != nil {
		return domain.Message{}, err
	}
	m := domain.NewMessage(o.NewID(), sender, receiver, p, o.Now())
	if err := o.Store.Save(ctx, m); err != nil {
		return domain.Message{}, fmt.Errorf("save message: %w", err)
	}
	view, _ := m.ViewFor(receiver)
	o.push(ctx, receiver, protocol.NewMessage{Message: view})
	log.Debug().Str("module", "app.orch").Str("uid", string(sender)).Str("peer", string(receiver)).Str("message", string(m.ID)).Msg("message sent")
	return *m, nil
}

// DeleteForMe hides a message from the requester only. Repeating it is a no-op.
func (o *Orchestrator) DeleteForMe(ctx context.Context, id domain.MessageID, requester domain.UserID) error {
	m, err := o.Store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find message: %w", err)
	}
	if !m.Participant(requester) {
		return domain.ErrForbidden
	}
	if _, err := o.Store.UpdateDeletionMarkers(ctx, id, domain.DeletionMarkers{HideFor: requester}); err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}

// DeleteForEveryone tombstones a message. Only its sender may do so.
func (o *Orchestrator) DeleteForEveryone(ctx context.Context, id domain.MessageID, requester domain.UserID) (protocol.MessageDeleted, error) {
	m, err := o.Store.FindByID(ctx, id)
	if err != nil {
		return protocol.MessageDeleted{}, fmt.Errorf("find message: %w", err)
	}
	if m.SenderID != requester {
		return protocol.MessageDeleted{}, domain.ErrForbidden
	}
	if _, err := o.Store.UpdateDeletionMarkers(ctx, id, domain.DeletionMarkers{ForEveryone: true}); err != nil {
		return protocol.MessageDeleted{}, fmt.Errorf("tombstone message: %w", err)
	}
	ev := protocol.MessageDeleted{MessageID: id, DeletedForEveryone: true}
	o.push(ctx, m.Counterpart(requester), ev)
	return ev, nil
}

// Conversation lists the messages between viewer and peer as viewer may see them.
func (o *Orchestrator) Conversation(ctx context.Context, viewer, peer domain.UserID) ([]domain.Message, error) {
	if !peer.Valid() {
		return nil, domain.ErrInvalidIdentity
	}
	msgs, err := o.Store.ListConversation(ctx, viewer, peer)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return domain.VisibleTo(msgs, viewer), nil
}

func (o *Orchestrator) Users(ctx context.Context, self domain.UserID) ([]domain.User, error) {
	users, err := o.Store.ListUsersExcept(ctx, self)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
