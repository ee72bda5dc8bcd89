package docs

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nzlov/roomsync/event"
)

type fakeStore struct {
	mu      sync.Mutex
	doc     Document
	err     error
	content []string
	titles  []string
	cover   string
}

func (f *fakeStore) Document(_ context.Context, id string) (Document, error) {
	if f.err != nil {
		return Document{}, f.err
	}
	d := f.doc
	d.ID = id
	return d, nil
}

func (f *fakeStore) UpdateContent(_ context.Context, _, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = append(f.content, content)
	return nil
}

func (f *fakeStore) UpdateTitle(_ context.Context, _, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeStore) UpdateCover(_ context.Context, _, cover string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cover = cover
	return nil
}

func (f *fakeStore) saved() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.content...), append([]string(nil), f.titles...)
}

type listener struct {
	kind event.Kind
	room string
	fn   func(event.Event)
}

type fakeRelay struct {
	email   string
	joinErr error

	mu        sync.Mutex
	joined    []string
	sent      []event.Event
	listeners map[int]listener
	next      int
}

func newFakeRelay(email string) *fakeRelay {
	return &fakeRelay{email: email, listeners: map[int]listener{}}
}

func (r *fakeRelay) Email() string { return r.email }

func (r *fakeRelay) Join(roomID string) error {
	if r.joinErr != nil {
		return r.joinErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, roomID)
	return nil
}

func (r *fakeRelay) record(ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ev)
	return nil
}

func (r *fakeRelay) SendContent(roomID, content string) error {
	return r.record(event.Content{RoomID: roomID, Content: content, UserEmail: r.email})
}

func (r *fakeRelay) SendTitle(roomID, title string) error {
	return r.record(event.Title{RoomID: roomID, Title: title, UserEmail: r.email})
}

func (r *fakeRelay) MoveCursor(roomID string, x, y float64) error {
	return r.record(event.Cursor{RoomID: roomID, UserEmail: r.email, X: x, Y: y})
}

func (r *fakeRelay) On(kind event.Kind, roomID string, fn func(event.Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.listeners[id] = listener{kind: kind, room: roomID, fn: fn}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

func (r *fakeRelay) deliver(ev event.Event) {
	r.mu.Lock()
	var fns []func(event.Event)
	for _, l := range r.listeners {
		if l.kind == ev.Kind() && (l.room == "" || l.room == ev.Room()) {
			fns = append(fns, l.fn)
		}
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (r *fakeRelay) listenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

func openSession(t *testing.T, store *fakeStore, relay *fakeRelay) *Session {
	t.Helper()
	s, err := Open(context.Background(), "doc-1", store, relay,
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithQuiet(time.Hour, time.Hour),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestOpenJoinsRoomAndLoadsDocument(t *testing.T) {
	store := &fakeStore{doc: Document{Title: "Plan", Content: "[]"}}
	relay := newFakeRelay("me@example.com")
	s := openSession(t, store, relay)

	if d := s.Document(); d.ID != "doc-1" || d.Title != "Plan" {
		t.Fatalf("document = %#v", d)
	}
	if len(relay.joined) != 1 || relay.joined[0] != "doc-1" {
		t.Fatalf("joined = %v", relay.joined)
	}
	if relay.listenerCount() == 0 {
		t.Fatal("no listeners registered")
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := relay.listenerCount(); n != 0 {
		t.Fatalf("listeners after close = %d, want 0", n)
	}
}

func TestOpenFailureLeavesNoListeners(t *testing.T) {
	boom := errors.New("boom")

	relay := newFakeRelay("me@example.com")
	if _, err := Open(context.Background(), "doc-1", &fakeStore{err: boom}, relay); !errors.Is(err, boom) {
		t.Fatalf("fetch failure err = %v", err)
	}

	relay.joinErr = boom
	if _, err := Open(context.Background(), "doc-1", &fakeStore{}, relay); !errors.Is(err, boom) {
		t.Fatalf("join failure err = %v", err)
	}
	if n := relay.listenerCount(); n != 0 {
		t.Fatalf("listeners = %d, want 0", n)
	}
}

func TestRemoteContent(t *testing.T) {
	store := &fakeStore{doc: Document{Content: `[{"id":"a"}]`}}
	relay := newFakeRelay("me@example.com")
	s := openSession(t, store, relay)

	relay.deliver(event.Content{RoomID: "doc-1", Content: `{"not":"blocks"}`, UserEmail: "peer@example.com"})
	relay.deliver(event.Content{RoomID: "doc-1", Content: `[{"id"`, UserEmail: "peer@example.com"})
	if got := s.Document().Content; got != `[{"id":"a"}]` {
		t.Fatalf("content after malformed = %q", got)
	}

	relay.deliver(event.Content{RoomID: "doc-2", Content: `[{"id":"other"}]`, UserEmail: "peer@example.com"})
	relay.deliver(event.Content{RoomID: "doc-1", Content: `[{"id":"mine"}]`, UserEmail: "me@example.com"})
	if got := s.Document().Content; got != `[{"id":"a"}]` {
		t.Fatalf("content after foreign/self = %q", got)
	}

	relay.deliver(event.Content{RoomID: "doc-1", Content: `[{"id":"b"}]`, UserEmail: "peer@example.com"})
	if got := s.Document().Content; got != `[{"id":"b"}]` {
		t.Fatalf("content = %q", got)
	}
	if got := s.LastEditor(); got != "peer@example.com" {
		t.Fatalf("last editor = %q", got)
	}

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	content, _ := store.saved()
	if len(content) != 1 || content[0] != `[{"id":"b"}]` {
		t.Fatalf("saved content = %v", content)
	}
}

func TestLocalEditsRelayAndSaveLatest(t *testing.T) {
	store := &fakeStore{}
	relay := newFakeRelay("me@example.com")
	s := openSession(t, store, relay)

	for _, c := range []string{`[1]`, `[1,2]`, `[1,2,3]`} {
		if err := s.Edit(c); err != nil {
			t.Fatalf("edit: %v", err)
		}
	}
	if err := s.Rename("Draft"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := s.Rename(""); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if len(relay.sent) != 5 {
		t.Fatalf("relayed %d events, want 5", len(relay.sent))
	}

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	content, titles := store.saved()
	if len(content) != 1 || content[0] != `[1,2,3]` {
		t.Fatalf("saved content = %v", content)
	}
	if len(titles) != 0 {
		t.Fatalf("saved titles = %v, want none after clearing", titles)
	}
	if err := s.Edit(`[9]`); err == nil {
		t.Fatal("edit after close succeeded")
	}
}

func TestAutosaveAfterQuietPeriod(t *testing.T) {
	store := &fakeStore{}
	relay := newFakeRelay("me@example.com")
	s, err := Open(context.Background(), "doc-1", store, relay, WithQuiet(10*time.Millisecond, 10*time.Millisecond))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close(context.Background())

	if err := s.Edit(`[1]`); err != nil {
		t.Fatalf("edit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if content, _ := store.saved(); len(content) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("content not saved after quiet period")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPresenceAndCursors(t *testing.T) {
	relay := newFakeRelay("me@example.com")
	changes := 0
	s, err := Open(context.Background(), "doc-1", &fakeStore{}, relay,
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithOnChange(func() { changes++ }),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close(context.Background())

	relay.deliver(event.RoomUsers{RoomID: "doc-1", Users: []event.Participant{
		{Email: "me@example.com", RoomID: "doc-1", ConnID: "c1"},
		{Email: "peer@example.com", RoomID: "doc-1", ConnID: "c2"},
	}})
	relay.deliver(event.Cursor{RoomID: "doc-1", UserEmail: "peer@example.com", X: 10, Y: 20})
	relay.deliver(event.Cursor{RoomID: "doc-1", UserEmail: "me@example.com", X: 1, Y: 1})
	relay.deliver(event.Title{RoomID: "doc-1", Title: "Shared", UserEmail: "peer@example.com"})
	relay.deliver(event.UserLeft())

	if n := len(s.Users()); n != 2 {
		t.Fatalf("users = %d, want 2", n)
	}
	cursors := s.Cursors()
	if len(cursors) != 1 || cursors[0].X != 10 || cursors[0].Color != ColorFor("peer@example.com") {
		t.Fatalf("cursors = %#v", cursors)
	}
	if got := s.Document().Title; got != "Shared" {
		t.Fatalf("title = %q", got)
	}

	relay.deliver(event.RoomUsers{RoomID: "doc-1", Users: []event.Participant{
		{Email: "me@example.com", RoomID: "doc-1", ConnID: "c1"},
	}})
	if n := len(s.Cursors()); n != 0 {
		t.Fatalf("cursors after leave = %d, want 0", n)
	}
	if changes != 4 {
		t.Fatalf("changes = %d, want 4", changes)
	}
}

func TestColorFor(t *testing.T) {
	a := ColorFor("a@example.com")
	if a != ColorFor("a@example.com") {
		t.Fatal("colour not stable")
	}
	if !strings.HasPrefix(a, "hsl(") || !strings.HasSuffix(a, ", 70%, 50%)") {
		t.Fatalf("colour = %q", a)
	}
	if got := ColorFor("a"); got != "hsl(97, 70%, 50%)" {
		t.Fatalf("ColorFor(a) = %q", got)
	}
}

type fakeBlobs struct{ keys []string }

func (b *fakeBlobs) Upload(_ context.Context, key, _ string, r io.Reader) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	b.keys = append(b.keys, key)
	return "docs/" + key, nil
}

func (b *fakeBlobs) PublicURL(p string) string { return "https://cdn/" + p }

func TestSetCover(t *testing.T) {
	store := &fakeStore{}
	blobs := &fakeBlobs{}
	s, err := Open(context.Background(), "doc-1", store, newFakeRelay("me@example.com"), WithBlobs(blobs))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close(context.Background())

	u, err := s.SetCover(context.Background(), "../sky.png", "image/png", strings.NewReader("img"))
	if err != nil {
		t.Fatalf("set cover: %v", err)
	}
	if len(blobs.keys) != 1 || !strings.HasPrefix(blobs.keys[0], "cover/") || !strings.HasSuffix(blobs.keys[0], "-sky.png") {
		t.Fatalf("keys = %v", blobs.keys)
	}
	if store.cover != u || s.Document().Cover != u {
		t.Fatalf("cover = %q / %q, want %q", store.cover, s.Document().Cover, u)
	}
}
