package domain

import "errors"

var (
	ErrInvalidIdentity   = errors.New("invalid identity")
	ErrBusy              = errors.New("user is busy on another call")
	ErrAlreadyInCall     = errors.New("you are already in a call")
	ErrSelfCall          = errors.New("cannot call yourself")
	ErrPeerOffline       = errors.New("user is offline")
	ErrNoSession         = errors.New("no call session")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrTransportFailure  = errors.New("transport failure")

	ErrNotFound     = errors.New("message not found")
	ErrForbidden    = errors.New("not authorized")
	ErrEmptyMessage = errors.New("message has neither text nor image")
)
