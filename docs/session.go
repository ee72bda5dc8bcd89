package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nzlov/roomsync/coalesce"
	"github.com/nzlov/roomsync/event"
)

const (
	ContentQuiet = 500 * time.Millisecond
	TitleQuiet   = 800 * time.Millisecond
)

type Option func(*Session)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Session) { s.log = log }
}

// WithQuiet overrides the autosave quiet periods.
func WithQuiet(content, title time.Duration) Option {
	return func(s *Session) {
		s.contentQuiet = content
		s.titleQuiet = title
	}
}

// WithBlobs enables SetCover.
func WithBlobs(b Blobs) Option {
	return func(s *Session) { s.blobs = b }
}

// WithOnChange registers fn to run after any remote update was applied.
func WithOnChange(fn func()) Option {
	return func(s *Session) { s.onChange = fn }
}

// Session is one open document. Local edits are relayed at once and saved
// after a quiet period; remote updates are applied last-writer-wins.
type Session struct {
	id    string
	store Store
	relay Relay
	blobs Blobs
	log   *zap.SugaredLogger

	contentQuiet time.Duration
	titleQuiet   time.Duration
	onChange     func()

	content *coalesce.Writer[string]
	title   *coalesce.Writer[string]

	mu         sync.Mutex
	doc        Document
	users      []event.Participant
	cursors    map[string]Cursor
	lastEditor string
	offs       []func()
	closed     bool
}

// Open loads the document, subscribes to its room and joins it. Listeners
// registered before a failure are removed again.
func Open(ctx context.Context, id string, store Store, relay Relay, opts ...Option) (*Session, error) {
	s := &Session{
		id:           id,
		store:        store,
		relay:        relay,
		contentQuiet: ContentQuiet,
		titleQuiet:   TitleQuiet,
		cursors:      map[string]Cursor{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.S()
	}
	s.log = s.log.With("method", "docs", "doc", id)

	doc, err := store.Document(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", id, err)
	}
	s.doc = doc
	s.content = coalesce.New(s.contentQuiet, s.saveContent, s.log)
	s.title = coalesce.New(s.titleQuiet, s.saveTitle, s.log)

	s.offs = append(s.offs,
		relay.On(event.KindContent, id, s.onContent),
		relay.On(event.KindTitle, id, s.onTitle),
		relay.On(event.KindRoomUsers, id, s.onRoomUsers),
		relay.On(event.KindCursor, id, s.onCursor),
		relay.On(event.KindUserJoined, id, s.onNotice),
		relay.On(event.KindUserLeft, "", s.onNotice),
	)
	if err := relay.Join(id); err != nil {
		s.unsubscribe()
		return nil, fmt.Errorf("join document room %s: %w", id, err)
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Session) Users() []event.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Participant(nil), s.users...)
}

// Cursors returns remote cursors ordered by email.
func (s *Session) Cursors() []Cursor {
	s.mu.Lock()
	out := make([]Cursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, c)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// LastEditor is the email of the participant whose content was applied last.
func (s *Session) LastEditor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEditor
}

// Edit replaces the local content, relays it and schedules a save.
func (s *Session) Edit(content string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("edit %s: session closed", s.id)
	}
	s.doc.Content = content
	s.mu.Unlock()

	s.content.Set(content)
	if err := s.relay.SendContent(s.id, content); err != nil {
		return fmt.Errorf("relay content: %w", err)
	}
	return nil
}

// Rename sets the title, relays it and schedules a save.
func (s *Session) Rename(title string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("rename %s: session closed", s.id)
	}
	s.doc.Title = title
	s.mu.Unlock()

	s.title.Set(title)
	if err := s.relay.SendTitle(s.id, title); err != nil {
		return fmt.Errorf("relay title: %w", err)
	}
	return nil
}

// MoveCursor is best-effort: failures are logged only.
func (s *Session) MoveCursor(x, y float64) {
	if err := s.relay.MoveCursor(s.id, x, y); err != nil {
		s.log.Debugf("cursor: %v", err)
	}
}

// SetCover uploads a cover image under cover/<unixmillis>-<name> and stores
// its public URL on the document.
func (s *Session) SetCover(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if s.blobs == nil {
		return "", fmt.Errorf("set cover %s: no blob store", s.id)
	}
	key := fmt.Sprintf("cover/%d-%s", time.Now().UnixMilli(), path.Base(name))
	p, err := s.blobs.Upload(ctx, key, contentType, r)
	if err != nil {
		return "", fmt.Errorf("upload cover: %w", err)
	}
	u := s.blobs.PublicURL(p)
	if err := s.store.UpdateCover(ctx, s.id, u); err != nil {
		return "", fmt.Errorf("update cover: %w", err)
	}
	s.mu.Lock()
	s.doc.Cover = u
	s.mu.Unlock()
	return u, nil
}

// Close removes every listener and flushes pending saves.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	cerr := s.content.Close(ctx)
	terr := s.title.Close(ctx)
	if cerr != nil {
		return fmt.Errorf("save content: %w", cerr)
	}
	if terr != nil {
		return fmt.Errorf("save title: %w", terr)
	}
	return nil
}

func (s *Session) unsubscribe() {
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

// Empty values are never saved; the latest value decides.
func (s *Session) saveContent(ctx context.Context, content string) error {
	if content == "" {
		return nil
	}
	return s.store.UpdateContent(ctx, s.id, content)
}

func (s *Session) saveTitle(ctx context.Context, title string) error {
	if title == "" {
		return nil
	}
	return s.store.UpdateTitle(ctx, s.id, title)
}

func (s *Session) self(email string) bool {
	return email != "" && email == s.relay.Email()
}

func (s *Session) onContent(ev event.Event) {
	c, ok := ev.(event.Content)
	if !ok || s.self(c.UserEmail) {
		return
	}
	var blocks []json.RawMessage
	if err := json.Unmarshal([]byte(c.Content), &blocks); err != nil {
		s.log.Warnw("drop malformed content", "from", c.UserEmail, "err", err)
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.doc.Content = c.Content
	s.lastEditor = c.UserEmail
	s.mu.Unlock()

	s.content.Set(c.Content)
	s.changed()
}

func (s *Session) onTitle(ev event.Event) {
	t, ok := ev.(event.Title)
	if !ok || s.self(t.UserEmail) {
		return
	}
	s.mu.Lock()
	s.doc.Title = t.Title
	s.mu.Unlock()
	s.changed()
}

func (s *Session) onRoomUsers(ev event.Event) {
	ru, ok := ev.(event.RoomUsers)
	if !ok {
		return
	}
	present := make(map[string]bool, len(ru.Users))
	for _, u := range ru.Users {
		present[u.Email] = true
	}
	s.mu.Lock()
	s.users = append([]event.Participant(nil), ru.Users...)
	for email := range s.cursors {
		if !present[email] {
			delete(s.cursors, email)
		}
	}
	s.mu.Unlock()
	s.changed()
}

func (s *Session) onCursor(ev event.Event) {
	c, ok := ev.(event.Cursor)
	if !ok || c.UserEmail == "" || s.self(c.UserEmail) {
		return
	}
	s.mu.Lock()
	cur, seen := s.cursors[c.UserEmail]
	if !seen {
		cur = Cursor{Email: c.UserEmail, Color: ColorFor(c.UserEmail)}
	}
	cur.X, cur.Y = c.X, c.Y
	s.cursors[c.UserEmail] = cur
	s.mu.Unlock()
	s.changed()
}

func (s *Session) onNotice(ev event.Event) {
	if n, ok := ev.(event.Notice); ok {
		s.log.Infow("notice", "kind", n.Type, "text", n.Text)
	}
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
