package chat

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// File is one attachment of an outgoing message.
type File struct {
	Name        string
	ContentType string
	// Preview is a local URL shown until the upload is confirmed.
	Preview string
	Body    io.Reader
}

// Outgoing is everything the composer submits at once.
type Outgoing struct {
	ChatID   string
	SenderID string
	Text     string
	ReplyTo  string
	Files    []File
}

// Pipeline shows outgoing messages in the cache at once and reconciles them
// with the store's answer later. Failures become StatusFailed on the entry.
type Pipeline struct {
	cache *Cache
	store Store
	blobs BlobStore
	log   *zap.SugaredLogger

	now   func() time.Time
	newID func() string
}

func NewPipeline(cache *Cache, store Store, blobs BlobStore, log *zap.SugaredLogger) *Pipeline {
	if cache == nil || store == nil {
		panic("chat: pipeline needs a cache and a store")
	}
	if log == nil {
		log = zap.S()
	}
	return &Pipeline{
		cache: cache,
		store: store,
		blobs: blobs,
		log:   log.With("method", "pipeline"),
		now:   time.Now,
		newID: func() string { return TempPrefix + uuid.NewString() },
	}
}

// Send dispatches to SendText or SendFiles. A message without text and
// files is not sent; the returned channel is already closed.
func (p *Pipeline) Send(ctx context.Context, o Outgoing) ([]string, <-chan struct{}) {
	if len(o.Files) > 0 {
		return p.SendFiles(ctx, o.ChatID, o.SenderID, o.Text, o.Files, o.ReplyTo)
	}
	id, done := p.SendText(ctx, o.ChatID, o.SenderID, o.Text, o.ReplyTo)
	if id == "" {
		return nil, done
	}
	return []string{id}, done
}

// SendText adds a sending placeholder and persists the message in the
// background. done is closed once the placeholder is reconciled.
func (p *Pipeline) SendText(ctx context.Context, chatID, senderID, text, replyTo string) (string, <-chan struct{}) {
	done := make(chan struct{})
	if text == "" {
		close(done)
		return "", done
	}
	tmp := p.placeholder(chatID, senderID, text, replyTo, nil)
	p.cache.Add(tmp)

	go func() {
		defer close(done)
		p.persist(ctx, tmp, Draft{ChatID: chatID, SenderID: senderID, Text: text, ReplyTo: replyTo})
	}()
	return tmp.ID, done
}

// SendFiles adds one placeholder per file, the first carrying caption, then
// uploads and persists the files in order. An upload failure marks that
// file failed and stops the batch; later placeholders stay sending. A failed
// insert marks only its own file.
func (p *Pipeline) SendFiles(ctx context.Context, chatID, senderID, caption string, files []File, replyTo string) ([]string, <-chan struct{}) {
	done := make(chan struct{})
	if len(files) == 0 {
		id, textDone := p.SendText(ctx, chatID, senderID, caption, replyTo)
		if id == "" {
			return nil, textDone
		}
		return []string{id}, textDone
	}

	tmps := make([]Message, len(files))
	ids := make([]string, len(files))
	for i, f := range files {
		text := ""
		if i == 0 {
			text = caption
		}
		tmps[i] = p.placeholder(chatID, senderID, text, replyTo, &FileRef{URL: f.Preview, ContentType: f.ContentType})
		ids[i] = tmps[i].ID
		p.cache.Add(tmps[i])
	}

	go func() {
		defer close(done)
		for i, f := range files {
			if p.blobs == nil {
				p.log.Errorw("upload: no blob store", "chat", chatID, "temp", tmps[i].ID)
				p.cache.Reconcile(chatID, tmps[i].ID, StatusFailed, nil)
				return
			}
			key := uploadKey(p.now(), i, f.Name)
			path, err := p.blobs.Upload(ctx, key, f.ContentType, f.Body)
			if err != nil {
				p.log.Errorw("upload failed", "chat", chatID, "key", key, "err", err)
				p.cache.Reconcile(chatID, tmps[i].ID, StatusFailed, nil)
				return
			}
			p.persist(ctx, tmps[i], Draft{
				ChatID:   chatID,
				SenderID: senderID,
				Text:     tmps[i].Text,
				File:     &FileRef{URL: p.blobs.PublicURL(path), ContentType: f.ContentType},
				ReplyTo:  replyTo,
			})
		}
	}()
	return ids, done
}

func (p *Pipeline) persist(ctx context.Context, tmp Message, d Draft) {
	m, err := p.store.InsertMessage(ctx, d)
	if err != nil {
		p.log.Errorw("insert failed", "chat", d.ChatID, "temp", tmp.ID, "err", err)
		p.cache.Reconcile(tmp.ChatID, tmp.ID, StatusFailed, nil)
		return
	}
	p.cache.Reconcile(tmp.ChatID, tmp.ID, StatusSent, &m)
}

func (p *Pipeline) placeholder(chatID, senderID, text, replyTo string, file *FileRef) Message {
	return Message{
		ID:        p.newID(),
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		File:      file,
		ReplyTo:   replyTo,
		CreatedAt: p.now(),
		Status:    StatusSending,
	}
}

// uploadKey names an attachment <unixmillis>-<index><ext>.
func uploadKey(t time.Time, i int, name string) string {
	return fmt.Sprintf("%d-%d%s", t.UnixMilli(), i, filepath.Ext(name))
}
