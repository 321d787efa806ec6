package core

// Frame is one encoded wire event.
type Frame []byte

// ConnectionID distinguishes two connections of the same user.
type ConnectionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() ConnectionID
	TrySend(Frame) error
	Close()
}
