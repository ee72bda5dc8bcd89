// Package event defines the relay wire protocol.
//
// Every frame on the websocket is a JSON object {"event": <name>, "data": <payload>}.
// Frames are decoded into one of the concrete Event types at the transport
// boundary so nothing past Decode inspects untyped payloads.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the event name carried on the wire.
type Kind string

const (
	KindJoin       Kind = "join-room"
	KindRoomUsers  Kind = "room-users"
	KindUserJoined Kind = "user-joined"
	KindUserLeft   Kind = "user-left"
	KindContent    Kind = "document_content"
	KindTitle      Kind = "document_title_updated"
	KindCursor     Kind = "cursor_moved"
)

var (
	ErrUnknownKind = errors.New("unknown event")
	ErrMissingRoom = errors.New("room id is required")
)

// Event is implemented by every relay payload.
type Event interface {
	Kind() Kind
	// Room returns the room the event is scoped to, or "" for system-wide notices.
	Room() string
}

// Frame is the envelope written on the websocket.
type Frame struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Participant is one (email, connection) pair inside a room.
type Participant struct {
	Email  string `json:"email"`
	RoomID string `json:"roomId"`
	ConnID string `json:"socketId"`
}

// Join asks the relay to add the sender to a room.
type Join struct {
	RoomID string `json:"roomId"`
	Email  string `json:"userEmail"`
}

// RoomUsers is the full participant list of a room after a membership change.
type RoomUsers struct {
	RoomID string        `json:"roomId"`
	Users  []Participant `json:"users"`
}

// Notice is a free-text membership notice (user-joined / user-left).
type Notice struct {
	Type   Kind   `json:"-"`
	RoomID string `json:"roomId,omitempty"`
	Text   string `json:"text"`
}

// Content carries a serialized document snapshot.
type Content struct {
	RoomID    string `json:"roomId"`
	Content   string `json:"content"`
	UserEmail string `json:"userEmail"`
}

// Title carries a live document title. Older clients send the title as
// socketHeadline, so both fields are written and either is accepted.
type Title struct {
	RoomID    string `json:"roomId"`
	Title     string `json:"title"`
	Headline  string `json:"socketHeadline,omitempty"`
	UserEmail string `json:"userEmail"`
}

// Cursor is a pointer position of one participant.
type Cursor struct {
	RoomID    string  `json:"roomId"`
	UserEmail string  `json:"userEmail"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

func (Join) Kind() Kind      { return KindJoin }
func (RoomUsers) Kind() Kind { return KindRoomUsers }
func (n Notice) Kind() Kind  { return n.Type }
func (Content) Kind() Kind   { return KindContent }
func (Title) Kind() Kind     { return KindTitle }
func (Cursor) Kind() Kind    { return KindCursor }

func (e Join) Room() string      { return e.RoomID }
func (e RoomUsers) Room() string { return e.RoomID }
func (e Notice) Room() string    { return e.RoomID }
func (e Content) Room() string   { return e.RoomID }
func (e Title) Room() string     { return e.RoomID }
func (e Cursor) Room() string    { return e.RoomID }

// Encode wraps ev in a Frame and marshals it.
func Encode(ev Event) ([]byte, error) {
	if t, ok := ev.(Title); ok {
		if t.Title == "" {
			t.Title = t.Headline
		}
		t.Headline = t.Title
		ev = t
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return json.Marshal(Frame{Event: ev.Kind(), Data: data})
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(ev Event) []byte {
	b, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a raw frame into its concrete Event.
func Decode(raw []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return decodeData(f)
}

func decodeData(f Frame) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch f.Event {
	case KindJoin:
		var v Join
		err = unmarshal(f, &v)
		ev = v
	case KindRoomUsers:
		var v RoomUsers
		err = unmarshal(f, &v)
		ev = v
	case KindUserJoined, KindUserLeft:
		v := Notice{Type: f.Event}
		err = unmarshal(f, &v)
		ev = v
	case KindContent:
		var v Content
		err = unmarshal(f, &v)
		ev = v
	case KindTitle:
		var v Title
		err = unmarshal(f, &v)
		if v.Title == "" {
			v.Title = v.Headline
		}
		ev = v
	case KindCursor:
		var v Cursor
		err = unmarshal(f, &v)
		ev = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Event)
	}
	if err != nil {
		return nil, err
	}
	if f.Event != KindUserJoined && f.Event != KindUserLeft && ev.Room() == "" {
		return nil, fmt.Errorf("%s: %w", f.Event, ErrMissingRoom)
	}
	return ev, nil
}

func unmarshal(f Frame, v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s: empty payload", f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Event, err)
	}
	return nil
}

// UserJoined builds the notice sent to existing members when someone joins.
func UserJoined(roomID, email string) Notice {
	return Notice{Type: KindUserJoined, RoomID: roomID, Text: email + " joined room " + roomID}
}

// UserLeft builds the system-wide notice sent after a disconnect.
func UserLeft() Notice {
	return Notice{Type: KindUserLeft, Text: "A user has left the room."}
}
