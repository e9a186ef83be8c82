// Package protocol defines the JSON wire envelope exchanged between
// collaborating clients and the server.
//
// Every frame is a Message whose Type is drawn from a closed set. The
// type-specific payload travels in Data and is decoded on demand with
// DecodeData into one of the *Data structs below.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/coedit/internal/ot"
)

// MessageType tags a Message. The set is closed: Decode rejects anything
// not listed here.
type MessageType string

const (
	TypeAuthenticate  MessageType = "authenticate"
	TypeAuthenticated MessageType = "authenticated"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"
	TypeJoin          MessageType = "join"
	TypeLeave         MessageType = "leave"
	TypeEdit          MessageType = "edit"
	TypePresence      MessageType = "presence"
	TypeComment       MessageType = "comment"
	TypeSync          MessageType = "sync"
	TypeAck           MessageType = "ack"
	TypeError         MessageType = "error"
)

// MessageTypes lists every known type in declaration order.
var MessageTypes = []MessageType{
	TypeAuthenticate, TypeAuthenticated, TypePing, TypePong,
	TypeJoin, TypeLeave, TypeEdit, TypePresence,
	TypeComment, TypeSync, TypeAck, TypeError,
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	for _, known := range MessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Control reports whether t belongs to the connection layer rather than the
// application (authentication and heartbeat).
func (t MessageType) Control() bool {
	switch t {
	case TypeAuthenticate, TypeAuthenticated, TypePing, TypePong:
		return true
	}
	return false
}

// Message is the envelope of every frame.
type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"` // ms since the Unix epoch
	Data      json.RawMessage `json:"data,omitempty"`
	Revision  *int64          `json:"revision,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
}

// AuthData is the payload of an authenticate message.
type AuthData struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
}

// AuthenticatedData is the server's reply to a successful authenticate. The
// server may assign the user id.
type AuthenticatedData struct {
	UserID string `json:"userId,omitempty"`
}

// JoinData announces a participant. Servers may include the current
// participant list and document version in the reply broadcast.
type JoinData struct {
	UserName        string         `json:"userName,omitempty"`
	UserColor       string         `json:"userColor,omitempty"`
	SessionID       string         `json:"sessionId,omitempty"`
	Title           string         `json:"title,omitempty"`
	Participants    []PresenceData `json:"participants,omitempty"`
	DocumentVersion int64          `json:"documentVersion,omitempty"`
}

// EditData carries one operation.
type EditData struct {
	Operation ot.Operation `json:"operation"`
}

// PresenceData is a cursor/selection update. Pointer fields distinguish
// "not sent" from zero so that updates merge into existing records.
type PresenceData struct {
	UserID         string `json:"userId,omitempty"`
	UserName       string `json:"userName,omitempty"`
	Color          string `json:"color,omitempty"`
	CursorPosition *int   `json:"cursorPosition,omitempty"`
	SelectionStart *int   `json:"selectionStart,omitempty"`
	SelectionEnd   *int   `json:"selectionEnd,omitempty"`
	IsOnline       *bool  `json:"isOnline,omitempty"`
}

// CommentData attaches a comment to a line.
type CommentData struct {
	Content    string `json:"content"`
	LineNumber int    `json:"lineNumber"`
	CommentID  string `json:"commentId"`
}

// SyncData reports the server's view of a session.
type SyncData struct {
	SessionID string `json:"sessionId"`
}

// ErrorData describes a server-side failure.
type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// New builds a message of type t with data marshaled into Data. A nil data
// leaves Data empty. Timestamp is left zero for the sender to stamp from
// its own clock.
func New(t MessageType, data any) (Message, error) {
	msg := Message{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s data: %w", t, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// MustNew is New for payloads that cannot fail to marshal.
func MustNew(t MessageType, data any) Message {
	msg, err := New(t, data)
	if err != nil {
		panic(err)
	}
	return msg
}

// DecodeData unmarshals the payload into v.
func (m Message) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return newDecodeError(ErrCodeMissingData, m.Type, "message has no data", nil)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return newDecodeError(ErrCodeInvalidData, m.Type, "invalid data", err)
	}
	return nil
}

// WithRevision returns a copy of m stamped with rev.
func (m Message) WithRevision(rev int64) Message {
	m.Revision = &rev
	return m
}

// RevisionOr returns the message revision or def when absent.
func (m Message) RevisionOr(def int64) int64 {
	if m.Revision == nil {
		return def
	}
	return *m.Revision
}

// SentAt returns the message timestamp as a time.
func (m Message) SentAt() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Encode serializes m for the wire.
func Encode(m Message) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, newDecodeError(ErrCodeUnknownType, m.Type, "refusing to encode unknown type", nil)
	}
	return json.Marshal(m)
}

// Decode parses a frame. It fails on malformed JSON and on unknown types.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, newDecodeError(ErrCodeMalformed, "", "malformed frame", err)
	}
	if m.Type == "" {
		return Message{}, newDecodeError(ErrCodeMissingType, "", "frame has no type", nil)
	}
	if !m.Type.Valid() {
		return Message{}, newDecodeError(ErrCodeUnknownType, m.Type, "unknown message type", nil)
	}
	return m, nil
}

// Now returns the current time in the envelope's timestamp unit.
func Now() int64 {
	return time.Now().UnixMilli()
}
