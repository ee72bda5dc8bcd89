package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var errBoom = errors.New("boom")

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, sec int) Message {
	return Message{ID: id, ChatID: "c1", SenderID: "peer", Text: id, CreatedAt: t0.Add(time.Duration(sec) * time.Second)}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// fakeStore hands out permanent ids p1, p2, ... and fails inserts whose text
// is listed in failText.
type fakeStore struct {
	mu       sync.Mutex
	n        int
	failText map[string]bool
	drafts   []Draft
	pages    map[string][]Message
	listErr  error
	// at is the confirmation time; zero means t0, the pipeline's clock.
	at time.Time
}

func (f *fakeStore) confirmAt() time.Time {
	if f.at.IsZero() {
		return t0
	}
	return f.at
}

func (f *fakeStore) InsertMessage(_ context.Context, d Draft) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	if f.failText[d.Text] {
		return Message{}, errBoom
	}
	f.n++
	return Message{
		ID:        fmt.Sprintf("p%d", f.n),
		ChatID:    d.ChatID,
		SenderID:  d.SenderID,
		Text:      d.Text,
		File:      d.File,
		ReplyTo:   d.ReplyTo,
		CreatedAt: f.confirmAt(),
	}, nil
}

// ListMessages serves pages newest-first out of an ascending slice.
func (f *fakeStore) ListMessages(_ context.Context, chatID string, offset, limit int) ([]Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	all := f.pages[chatID]
	var out []Message
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (f *fakeStore) draftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drafts)
}

type fakeBlobs struct {
	mu      sync.Mutex
	failAt  map[int]bool
	calls   int
	keys    []string
	content []string
}

func (b *fakeBlobs) Upload(_ context.Context, key, _ string, r io.Reader) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.calls
	b.calls++
	if b.failAt[i] {
		return "", errBoom
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.keys = append(b.keys, key)
	b.content = append(b.content, string(data))
	return "chat-uploads/" + key, nil
}

func (b *fakeBlobs) PublicURL(p string) string { return "https://files/" + p }

type fakeReads struct {
	mu      sync.Mutex
	counts  []UnreadCount
	err     error
	markers map[string]string
	sets    int
}

func (f *fakeReads) UnreadCounts(context.Context, string) ([]UnreadCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]UnreadCount(nil), f.counts...), nil
}

func (f *fakeReads) ReadMarker(_ context.Context, chatID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markers[chatID], nil
}

func (f *fakeReads) SetReadMarker(_ context.Context, chatID, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markers == nil {
		f.markers = map[string]string{}
	}
	f.markers[chatID] = messageID
	f.sets++
	return nil
}

type fakeDirectory map[string]string

func (d fakeDirectory) ChatName(_ context.Context, chatID string) (string, error) {
	name, ok := d[chatID]
	if !ok {
		return "", errBoom
	}
	return name, nil
}

type fakeNotifier struct {
	ch chan Notification
}

func (f *fakeNotifier) Notify(n Notification) { f.ch <- n }

type opened struct{ title, id, chatID string }

type fakeOpener struct {
	opened  []opened
	focused int
}

func (o *fakeOpener) Open(title, id, chatID string) {
	o.opened = append(o.opened, opened{title, id, chatID})
}

func (o *fakeOpener) Focus() { o.focused++ }

type fakeSource struct {
	ch      chan Change
	stopped chan struct{}
}

func (f *fakeSource) Subscribe(ctx context.Context) (<-chan Change, error) {
	out := make(chan Change)
	go func() {
		defer close(f.stopped)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-f.ch:
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
