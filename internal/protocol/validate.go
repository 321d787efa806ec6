package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/tidwall/gjson"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrProtocolViolation, fmt.Sprintf(format, args...))
}

func checkUser(field string, id domain.UserID) error {
	if !id.Valid() {
		return invalid("%s is not a valid user id", field)
	}
	return nil
}

// checkDescription accepts a session description object whose type is want
// and whose sdp is not empty.
func checkDescription(field string, raw json.RawMessage, want string) error {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return invalid("%s must be an object", field)
	}
	if got := gjson.GetBytes(raw, "type").String(); got != want {
		return invalid("%s has type %q, want %q", field, got, want)
	}
	if gjson.GetBytes(raw, "sdp").String() == "" {
		return invalid("%s has no sdp", field)
	}
	return nil
}

// checkCandidate accepts an ICE candidate-init object. An empty candidate
// string is the end-of-candidates marker and is allowed.
func checkCandidate(raw json.RawMessage) error {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return invalid("candidate must be an object")
	}
	if c := gjson.GetBytes(raw, "candidate"); !c.Exists() || c.Type != gjson.String {
		return invalid("candidate has no candidate string")
	}
	return nil
}

func (e Initiate) Validate() error {
	if err := checkUser("calleeId", e.CalleeID); err != nil {
		return err
	}
	if len(e.Caller.DisplayName) > 4*domain.MaxUsernameLen {
		return invalid("caller.displayName too long")
	}
	return nil
}

func (e Accept) Validate() error { return checkUser("callerId", e.CallerID) }
func (e Reject) Validate() error { return checkUser("callerId", e.CallerID) }

func (e Offer) Validate() error {
	if err := checkUser("calleeId", e.CalleeID); err != nil {
		return err
	}
	return checkDescription("offer", e.Offer, "offer")
}

func (e Answer) Validate() error {
	if err := checkUser("callerId", e.CallerID); err != nil {
		return err
	}
	return checkDescription("answer", e.Answer, "answer")
}

func (e Candidate) Validate() error {
	if err := checkUser("remoteUserId", e.RemoteUserID); err != nil {
		return err
	}
	return checkCandidate(e.Candidate)
}

func (e End) Validate() error { return checkUser("remoteUserId", e.RemoteUserID) }
func (Ping) Validate() error  { return nil }

func (OnlineUsers) Validate() error { return nil }

func (e Incoming) Validate() error { return checkUser("caller.id", e.Caller.ID) }
func (e Busy) Validate() error     { return checkUser("calleeId", e.CalleeID) }
func (CallError) Validate() error  { return nil }
func (e Accepted) Validate() error { return checkUser("calleeId", e.CalleeID) }
func (e Rejected) Validate() error { return checkUser("calleeId", e.CalleeID) }

func (e RemoteOffer) Validate() error {
	if err := checkUser("callerId", e.CallerID); err != nil {
		return err
	}
	return checkDescription("offer", e.Offer, "offer")
}

func (e RemoteAnswer) Validate() error {
	if err := checkUser("calleeId", e.CalleeID); err != nil {
		return err
	}
	return checkDescription("answer", e.Answer, "answer")
}

func (e RemoteCandidate) Validate() error {
	if err := checkUser("userId", e.UserID); err != nil {
		return err
	}
	return checkCandidate(e.Candidate)
}

func (e Ended) Validate() error { return checkUser("userId", e.UserID) }

func (e NewMessage) Validate() error {
	if e.ID == "" {
		return invalid("message has no id")
	}
	return nil
}

func (e MessageDeleted) Validate() error {
	if e.MessageID == "" {
		return invalid("messageId is empty")
	}
	return nil
}

func (Pong) Validate() error { return nil }
