// Package docs runs the live editing session of one shared document: it joins
// the document's relay room, applies remote content, title and cursor updates,
// and autosaves local edits.
package docs

import (
	"context"
	"fmt"
	"io"

	"github.com/nzlov/roomsync/event"
)

// Document is the durable document row.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"document_title"`
	Content string `json:"content"`
	Cover   string `json:"cover"`
}

type Store interface {
	Document(ctx context.Context, id string) (Document, error)
	UpdateContent(ctx context.Context, id, content string) error
	UpdateTitle(ctx context.Context, id, title string) error
	UpdateCover(ctx context.Context, id, cover string) error
}

// Relay is the realtime connection a session talks through.
type Relay interface {
	Email() string
	Join(roomID string) error
	SendContent(roomID, content string) error
	SendTitle(roomID, title string) error
	MoveCursor(roomID string, x, y float64) error
	// On registers fn for events of kind in roomID ("" matches every room)
	// and returns a func removing it.
	On(kind event.Kind, roomID string, fn func(event.Event)) func()
}

// Blobs stores cover images.
type Blobs interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	PublicURL(path string) string
}

// Cursor is the last known pointer of a remote participant.
type Cursor struct {
	Email string  `json:"email"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

// ColorFor derives a stable cursor colour from an email.
func ColorFor(email string) string {
	var hash int32
	for _, c := range email {
		hash = int32(c) + ((hash << 5) - hash)
	}
	hue := hash % 360
	if hue < 0 {
		hue += 360
	}
	return fmt.Sprintf("hsl(%d, 70%%, 50%%)", hue)
}
