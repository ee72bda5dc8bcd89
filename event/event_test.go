package event

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "join",
			raw:  `{"event":"join-room","data":{"roomId":"r1","userEmail":"a@x.io"}}`,
			want: Join{RoomID: "r1", Email: "a@x.io"},
		},
		{
			name: "content",
			raw:  `{"event":"document_content","data":{"roomId":"r1","content":"[]","userEmail":"a@x.io"}}`,
			want: Content{RoomID: "r1", Content: "[]", UserEmail: "a@x.io"},
		},
		{
			name: "title from socketHeadline",
			raw:  `{"event":"document_title_updated","data":{"roomId":"r1","socketHeadline":"Plan","userEmail":"a@x.io"}}`,
			want: Title{RoomID: "r1", Title: "Plan", Headline: "Plan", UserEmail: "a@x.io"},
		},
		{
			name: "cursor",
			raw:  `{"event":"cursor_moved","data":{"roomId":"r1","userEmail":"a@x.io","x":1.5,"y":-2}}`,
			want: Cursor{RoomID: "r1", UserEmail: "a@x.io", X: 1.5, Y: -2},
		},
		{
			name: "user left has no room",
			raw:  `{"event":"user-left","data":{"text":"A user has left the room."}}`,
			want: Notice{Type: KindUserLeft, Text: "A user has left the room."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Fatalf("decode = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeRoomUsers(t *testing.T) {
	raw := MustEncode(RoomUsers{RoomID: "r1", Users: []Participant{{Email: "a@x.io", RoomID: "r1", ConnID: "c1"}}})
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ru, ok := got.(RoomUsers)
	if !ok {
		t.Fatalf("decoded %T, want RoomUsers", got)
	}
	if len(ru.Users) != 1 || ru.Users[0].ConnID != "c1" {
		t.Fatalf("users = %#v", ru.Users)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{"event":`},
		{name: "unknown event", raw: `{"event":"explode","data":{}}`},
		{name: "missing payload", raw: `{"event":"document_content"}`},
		{name: "missing room", raw: `{"event":"cursor_moved","data":{"x":1,"y":1}}`},
		{name: "wrong payload type", raw: `{"event":"cursor_moved","data":{"roomId":"r","x":"left"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeUnknownKindIsSentinel(t *testing.T) {
	_, err := Decode([]byte(`{"event":"nope","data":{}}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestEncodeTitleWritesBothFields(t *testing.T) {
	raw := MustEncode(Title{RoomID: "r1", Title: "Roadmap", UserEmail: "a@x.io"})

	var f struct {
		Event Kind              `json:"event"`
		Data  map[string]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Event != KindTitle {
		t.Fatalf("event = %q, want %q", f.Event, KindTitle)
	}
	if f.Data["title"] != "Roadmap" || f.Data["socketHeadline"] != "Roadmap" {
		t.Fatalf("data = %v", f.Data)
	}
}

func TestNotices(t *testing.T) {
	j := UserJoined("r1", "a@x.io")
	if j.Kind() != KindUserJoined || !strings.Contains(j.Text, "a@x.io joined room r1") {
		t.Fatalf("joined notice = %#v", j)
	}
	l := UserLeft()
	if l.Kind() != KindUserLeft || l.Room() != "" {
		t.Fatalf("left notice = %#v", l)
	}
}
