// Package protocol defines the closed set of events exchanged over the
// signaling socket and decodes them at the boundary.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Duet/internal/domain"
)

const (
	TypeInitiate  = "call:initiate"
	TypeAccept    = "call:accept"
	TypeReject    = "call:reject"
	TypeOffer     = "call:offer"
	TypeAnswer    = "call:answer"
	TypeCandidate = "call:ice-candidate"
	TypeEnd       = "call:end"
	TypePing      = "ping"

	TypeOnlineUsers    = "getOnlineUsers"
	TypeIncoming       = "call:incoming"
	TypeBusy           = "call:busy"
	TypeCallError      = "call:error"
	TypeAccepted       = "call:accepted"
	TypeRejected       = "call:rejected"
	TypeEnded          = "call:ended"
	TypeNewMessage     = "newMessage"
	TypeMessageDeleted = "messageDeleted"
	TypePong           = "pong"
)

// ReasonDisconnected marks a call ended because the other side dropped.
const ReasonDisconnected = "disconnected"

// Envelope is the JSON frame around every event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is implemented only by the types in this package.
type Event interface {
	Type() string
	Validate() error
	event()
}

// client -> server

type Initiate struct {
	CalleeID domain.UserID     `json:"calleeId"`
	Caller   domain.CallerInfo `json:"caller"`
}

type Accept struct {
	CallerID domain.UserID `json:"callerId"`
}

type Reject struct {
	CallerID domain.UserID `json:"callerId"`
}

type Offer struct {
	Offer    json.RawMessage `json:"offer"`
	CalleeID domain.UserID   `json:"calleeId"`
}

type Answer struct {
	Answer   json.RawMessage `json:"answer"`
	CallerID domain.UserID   `json:"callerId"`
}

type Candidate struct {
	Candidate    json.RawMessage `json:"candidate"`
	RemoteUserID domain.UserID   `json:"remoteUserId"`
}

type End struct {
	RemoteUserID domain.UserID `json:"remoteUserId"`
}

type Ping struct{}

// server -> client

type OnlineUsers struct {
	UserIDs     []domain.UserID `json:"userIds"`
	BusyUserIDs []domain.UserID `json:"busyUserIds"`
}

type Incoming struct {
	Caller domain.CallerInfo `json:"caller"`
}

type Busy struct {
	CalleeID domain.UserID `json:"calleeId"`
}

type CallError struct {
	Message string `json:"message"`
}

type Accepted struct {
	CalleeID domain.UserID `json:"calleeId"`
}

type Rejected struct {
	CalleeID domain.UserID `json:"calleeId"`
}

type RemoteOffer struct {
	Offer    json.RawMessage `json:"offer"`
	CallerID domain.UserID   `json:"callerId"`
}

type RemoteAnswer struct {
	Answer   json.RawMessage `json:"answer"`
	CalleeID domain.UserID   `json:"calleeId"`
}

type RemoteCandidate struct {
	Candidate json.RawMessage `json:"candidate"`
	UserID    domain.UserID   `json:"userId"`
}

type Ended struct {
	UserID domain.UserID `json:"userId"`
	Reason string        `json:"reason,omitempty"`
}

type NewMessage struct {
	domain.Message
}

type MessageDeleted struct {
	MessageID          domain.MessageID `json:"messageId"`
	DeletedForEveryone bool             `json:"deletedForEveryone"`
}

type Pong struct{}

func (Initiate) Type() string        { return TypeInitiate }
func (Accept) Type() string          { return TypeAccept }
func (Reject) Type() string          { return TypeReject }
func (Offer) Type() string           { return TypeOffer }
func (Answer) Type() string          { return TypeAnswer }
func (Candidate) Type() string       { return TypeCandidate }
func (End) Type() string             { return TypeEnd }
func (Ping) Type() string            { return TypePing }
func (OnlineUsers) Type() string     { return TypeOnlineUsers }
func (Incoming) Type() string        { return TypeIncoming }
func (Busy) Type() string            { return TypeBusy }
func (CallError) Type() string       { return TypeCallError }
func (Accepted) Type() string        { return TypeAccepted }
func (Rejected) Type() string        { return TypeRejected }
func (RemoteOffer) Type() string     { return TypeOffer }
func (RemoteAnswer) Type() string    { return TypeAnswer }
func (RemoteCandidate) Type() string { return TypeCandidate }
func (Ended) Type() string           { return TypeEnded }
func (NewMessage) Type() string      { return TypeNewMessage }
func (MessageDeleted) Type() string  { return TypeMessageDeleted }
func (Pong) Type() string            { return TypePong }

func (Initiate) event()        {}
func (Accept) event()          {}
func (Reject) event()          {}
func (Offer) event()           {}
func (Answer) event()          {}
func (Candidate) event()       {}
func (End) event()             {}
func (Ping) event()            {}
func (OnlineUsers) event()     {}
func (Incoming) event()        {}
func (Busy) event()            {}
func (CallError) event()       {}
func (Accepted) event()        {}
func (Rejected) event()        {}
func (RemoteOffer) event()     {}
func (RemoteAnswer) event()    {}
func (RemoteCandidate) event() {}
func (Ended) event()           {}
func (NewMessage) event()      {}
func (MessageDeleted) event()  {}
func (Pong) event()            {}
