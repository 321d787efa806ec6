package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Duet/internal/core"
	"github.com/tidwall/gjson"
)

type decoder func(data []byte) (Event, error)

func into[T Event](data []byte) (Event, error) {
	var v T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

var inbound = map[string]decoder{
	TypeInitiate:  into[Initiate],
	TypeAccept:    into[Accept],
	TypeReject:    into[Reject],
	TypeOffer:     into[Offer],
	TypeAnswer:    into[Answer],
	TypeCandidate: into[Candidate],
	TypeEnd:       into[End],
	TypePing:      into[Ping],
}

var outbound = map[string]decoder{
	TypeOnlineUsers:    into[OnlineUsers],
	TypeIncoming:       into[Incoming],
	TypeBusy:           into[Busy],
	TypeCallError:      into[CallError],
	TypeAccepted:       into[Accepted],
	TypeRejected:       into[Rejected],
	TypeOffer:          into[RemoteOffer],
	TypeAnswer:         into[RemoteAnswer],
	TypeCandidate:      into[RemoteCandidate],
	TypeEnded:          into[Ended],
	TypeNewMessage:     into[NewMessage],
	TypeMessageDeleted: into[MessageDeleted],
	TypePong:           into[Pong],
}

// DecodeInbound parses and validates a frame sent by a client.
func DecodeInbound(raw []byte) (Event, error) { return decode(raw, inbound) }

// DecodeOutbound parses and validates a frame sent by the server.
func DecodeOutbound(raw []byte) (Event, error) { return decode(raw, outbound) }

func decode(raw []byte, kinds map[string]decoder) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return nil, invalid("malformed frame")
	}
	typ := gjson.GetBytes(raw, "type")
	if typ.Type != gjson.String {
		return nil, invalid("frame has no type")
	}
	dec, ok := kinds[typ.Str]
	if !ok {
		return nil, invalid("unknown event %q", typ.Str)
	}
	var data []byte
	if d := gjson.GetBytes(raw, "data"); d.Exists() && d.Type != gjson.Null {
		data = []byte(d.Raw)
	}
	ev, err := dec(data)
	if err != nil {
		return nil, invalid("%s: %v", typ.Str, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", typ.Str, err)
	}
	return ev, nil
}

// Encode wraps ev in an envelope.
func Encode(ev Event) (core.Frame, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.Type(), Data: data})
}

// MustEncode is Encode for events built from trusted values.
func MustEncode(ev Event) core.Frame {
	f, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return f
}
