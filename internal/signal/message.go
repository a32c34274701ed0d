package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the call-control meaning of a message type.
type Kind int

const (
	KindOther Kind = iota
	KindOffer
	KindAnswer
	KindCandidate
	KindCallEnded
)

func (k Kind) String() string {
	switch k {
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	case KindCandidate:
		return "candidate"
	case KindCallEnded:
		return "call_ended"
	default:
		return "other"
	}
}

// kindOf matches type strings case-insensitively; clients send both "offer" and "OFFER".
func kindOf(t string) Kind {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "OFFER":
		return KindOffer
	case "ANSWER":
		return KindAnswer
	case "CANDIDATE", "ICE_CANDIDATE", "ICE":
		return KindCandidate
	case "CALL_ENDED":
		return KindCallEnded
	default:
		return KindOther
	}
}

// Server-originated message types.
const (
	TypeUserBusy = "USER_BUSY"
	TypeUserLeft = "USER_LEFT"
	TypeError    = "ERROR"
)

// ErrMalformed wraps every reason an inbound frame could not be read as a message.
var ErrMalformed = errors.New("malformed message")

// Message is one inbound signaling frame. Everything except the routing fields is
// kept as raw JSON and forwarded untouched.
type Message struct {
	Kind   Kind
	Type   string // as sent by the client
	Target string

	fields map[string]json.RawMessage
}

func Parse(raw []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return Message{}, fmt.Errorf("%w: message must be a JSON object", ErrMalformed)
	}
	m := Message{fields: fields}

	// a non-string type is tolerated and treated as an unknown kind
	if v, ok := fields["type"]; ok {
		_ = json.Unmarshal(v, &m.Type)
	}
	m.Kind = kindOf(m.Type)

	if v, ok := fields["targetUserId"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &m.Target); err != nil {
			return Message{}, fmt.Errorf("%w: targetUserId must be a string", ErrMalformed)
		}
	}
	return m, nil
}

// Forward returns the message body as delivered to the target: the original
// fields plus fromUserId, which always names the real sender.
func (m Message) Forward(from string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m.fields)+1)
	for k, v := range m.fields {
		out[k] = v
	}
	b, _ := json.Marshal(from)
	out["fromUserId"] = b
	return out
}

type control struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId,omitempty"`
	Message    string `json:"message,omitempty"`
}

func userBusy(target string) control { return control{Type: TypeUserBusy, FromUserID: target} }
func userLeft(user string) control { return control{Type: TypeUserLeft, FromUserID: user} }
func errorMsg(err error) control { return control{Type: TypeError, Message: err.Error()} }

func isNull(v json.RawMessage) bool { return bytes.Equal(bytes.TrimSpace(v), []byte("null")) }
