// Package chat holds the client-side chat core: the optimistic send pipeline,
// the per-chat message page cache, unread counters and the dispatch of durable
// store change notifications into them.
package chat

import (
	"context"
	"io"
	"strings"
	"time"
)

// Status is the delivery state of a cached message.
type Status string

const (
	StatusNone    Status = ""
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// TempPrefix marks client-generated identifiers that have not been confirmed
// by the durable store.
const TempPrefix = "temp-"

// FileRef points to an uploaded (or, for placeholders, locally previewed) file.
type FileRef struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"send_by"`
	Text      string    `json:"text,omitempty"`
	File      *FileRef  `json:"file,omitempty"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Edited    bool      `json:"is_edit"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status,omitempty"`
}

// Temporary reports whether m is still a client-local placeholder.
func (m Message) Temporary() bool {
	return strings.HasPrefix(m.ID, TempPrefix)
}

// Draft is a message as submitted to the durable store.
type Draft struct {
	ChatID   string
	SenderID string
	Text     string
	File     *FileRef
	ReplyTo  string
}

// ChangeType is the kind of row-level change reported by the durable store.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one row-level notification on the messages table. For deletes
// Message holds the old row.
type Change struct {
	Type    ChangeType `json:"type"`
	Message Message    `json:"message"`
}

// UnreadCount is a per-chat count of messages after the reader's marker.
type UnreadCount struct {
	ChatID string `json:"chat_id"`
	Count  int    `json:"unread_count"`
}

// Store persists messages.
type Store interface {
	InsertMessage(ctx context.Context, d Draft) (Message, error)
}

// PageSource serves message history newest-first.
type PageSource interface {
	ListMessages(ctx context.Context, chatID string, offset, limit int) ([]Message, error)
}

// ReadStore keeps per-participant read markers.
type ReadStore interface {
	UnreadCounts(ctx context.Context, userID string) ([]UnreadCount, error)
	ReadMarker(ctx context.Context, chatID, userID string) (string, error)
	SetReadMarker(ctx context.Context, chatID, userID, messageID string) error
}

// Directory resolves chat metadata.
type Directory interface {
	ChatName(ctx context.Context, chatID string) (string, error)
}

// BlobStore uploads files and resolves their public location.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	PublicURL(path string) string
}

// ChangeSource delivers row-level changes until ctx is done, then closes the
// channel.
type ChangeSource interface {
	Subscribe(ctx context.Context) (<-chan Change, error)
}
