package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrMalformed means the payload is not valid JSON, not UTF-8, or has mistyped fields.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnknownType means the envelope tag is missing or not one this side accepts.
	ErrUnknownType = errors.New("unknown envelope type")
	// ErrEmptyContent means a chat message had no visible text.
	ErrEmptyContent = errors.New("empty message content")
)

// DecodeError reports why a payload could not be turned into an envelope.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("decode %q: %v", e.Type, e.Err)
	}
	return "decode: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes an event into its wire form, with the tag as the "type" field.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("encode: nil event")
	}
	if roster, ok := ev.(RosterSnapshot); ok && roster.Users == nil {
		roster.Users = []User{}
		ev = roster
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	tag, err := json.Marshal(ev.EventType())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}

	out := make([]byte, 0, len(body)+len(tag)+9)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
		return out, nil
	}
	return append(out, '}'), nil
}

// DecodeEvent parses a server-emitted envelope. The tag is checked before any field is read.
func DecodeEvent(payload []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	var ev Event
	var err error
	switch head.Type {
	case TypeUserID:
		var v IdentityAssigned
		err = json.Unmarshal(payload, &v)
		ev = v
	case TypeNewUser:
		var v MemberJoined
		err = json.Unmarshal(payload, &v)
		ev = v
	case TypeUserList:
		var v RosterSnapshot
		err = json.Unmarshal(payload, &v)
		ev = v
	case TypeMessage:
		var v ChatMessage
		err = json.Unmarshal(payload, &v)
		ev = v
	case TypeUserDisconnected:
		var v MemberLeft
		err = json.Unmarshal(payload, &v)
		ev = v
	case TypeStatus:
		var v Status
		err = json.Unmarshal(payload, &v)
		ev = v
	default:
		return nil, &DecodeError{Type: head.Type, Err: ErrUnknownType}
	}
	if err != nil {
		return nil, &DecodeError{Type: head.Type, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return ev, nil
}

// DecodeInbound turns a client payload into a chat request.
//
// A JSON object must be {"type":"message","content":"..."}. Anything that is not a
// JSON object is treated as raw chat text when allowPlainText is set.
func DecodeInbound(payload []byte, allowPlainText bool) (ChatRequest, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return ChatRequest{}, &DecodeError{Err: ErrEmptyContent}
	}

	if trimmed[0] != '{' || !json.Valid(trimmed) {
		if !allowPlainText || !utf8.Valid(payload) {
			return ChatRequest{}, &DecodeError{Err: ErrMalformed}
		}
		return ChatRequest{Content: string(payload), Legacy: true}, nil
	}

	var in Inbound
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return ChatRequest{}, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if in.Type != TypeMessage {
		return ChatRequest{}, &DecodeError{Type: in.Type, Err: ErrUnknownType}
	}
	if strings.TrimSpace(in.Content) == "" {
		return ChatRequest{}, &DecodeError{Type: in.Type, Err: ErrEmptyContent}
	}
	return ChatRequest{Content: in.Content}, nil
}
