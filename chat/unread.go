package chat

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Unread tracks per-chat unread counters of one user. Chats in the open set
// always report zero.
type Unread struct {
	userID   string
	reads    ReadStore
	dir      Directory
	cache    *Cache
	notifier Notifier
	opener   Opener
	email    func(userID string) string
	log      *zap.SugaredLogger

	mu     sync.Mutex
	counts map[string]int
	open   map[string]bool
	wg     sync.WaitGroup
}

type UnreadOption func(*Unread)

// WithNotifier raises a Notification for messages arriving in closed chats.
// Clicking it opens the chat through o.
func WithNotifier(n Notifier, o Opener) UnreadOption {
	return func(u *Unread) {
		u.notifier = n
		u.opener = o
	}
}

// WithDirectory resolves chat names and sender emails for notifications.
func WithDirectory(dir Directory, email func(userID string) string) UnreadOption {
	return func(u *Unread) {
		u.dir = dir
		u.email = email
	}
}

func WithUnreadLogger(log *zap.SugaredLogger) UnreadOption {
	return func(u *Unread) { u.log = log }
}

func NewUnread(userID string, reads ReadStore, cache *Cache, opts ...UnreadOption) *Unread {
	if reads == nil || cache == nil {
		panic("chat: unread needs a read store and a cache")
	}
	u := &Unread{
		userID: userID,
		reads:  reads,
		cache:  cache,
		counts: map[string]int{},
		open:   map[string]bool{},
	}
	for _, o := range opts {
		o(u)
	}
	if u.log == nil {
		u.log = zap.S()
	}
	u.log = u.log.With("method", "unread", "user", userID)
	return u
}

// FetchUnreadCounts refreshes the counters from the store. A chat whose
// newest cached message is the user's own counts as read. On error the
// counters are kept.
func (u *Unread) FetchUnreadCounts(ctx context.Context) error {
	rows, err := u.reads.UnreadCounts(ctx, u.userID)
	if err != nil {
		u.log.Errorf("fetch unread counts: %v", err)
		return fmt.Errorf("fetch unread counts: %w", err)
	}
	next := make(map[string]int, len(rows))
	for _, r := range rows {
		n := r.Count
		if last, ok := u.cache.Last(r.ChatID); ok && last.SenderID == u.userID {
			n = 0
		}
		next[r.ChatID] = n
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	for id, n := range next {
		u.counts[id] = n
	}
	u.zeroOpen()
	return nil
}

// MarkRead advances the read marker of an open chat to its newest confirmed
// message and refreshes the counters.
func (u *Unread) MarkRead(ctx context.Context, chatID string) error {
	if !u.IsOpen(chatID) {
		return nil
	}
	last, ok := u.cache.LastConfirmed(chatID)
	if !ok {
		return nil
	}
	marker, err := u.reads.ReadMarker(ctx, chatID, u.userID)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", chatID, err)
	}
	if marker == last.ID {
		return nil
	}
	if err := u.reads.SetReadMarker(ctx, chatID, u.userID, last.ID); err != nil {
		return fmt.Errorf("mark read %s: %w", chatID, err)
	}
	return u.FetchUnreadCounts(ctx)
}

// SetOpen replaces the set of chats currently on screen.
func (u *Unread) SetOpen(chatIDs []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.open = make(map[string]bool, len(chatIDs))
	for _, id := range chatIDs {
		u.open[id] = true
	}
	u.zeroOpen()
}

func (u *Unread) IsOpen(chatID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.open[chatID]
}

// zeroOpen must be called with mu held.
func (u *Unread) zeroOpen() {
	for id := range u.open {
		if _, ok := u.counts[id]; ok {
			u.counts[id] = 0
		}
	}
}

func (u *Unread) Count(chatID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.open[chatID] {
		return 0
	}
	return u.counts[chatID]
}

// Counts returns a copy of all counters.
func (u *Unread) Counts() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]int, len(u.counts))
	for id, n := range u.counts {
		if u.open[id] {
			n = 0
		}
		out[id] = n
	}
	return out
}

// OnInsert counts a message announced by the store and, for chats not on
// screen, raises a notification in the background.
func (u *Unread) OnInsert(ctx context.Context, m Message) {
	if m.SenderID == u.userID {
		return
	}
	u.mu.Lock()
	if u.open[m.ChatID] {
		u.mu.Unlock()
		return
	}
	u.counts[m.ChatID]++
	u.mu.Unlock()

	if u.notifier == nil {
		return
	}
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.notify(ctx, m)
	}()
}

// Wait blocks until notifications raised so far were handed to the notifier.
func (u *Unread) Wait() {
	u.wg.Wait()
}

func (u *Unread) notify(ctx context.Context, m Message) {
	email := ""
	if u.email != nil {
		email = u.email(m.SenderID)
	}
	n := Notification{
		Title:  DisplayName(email),
		Body:   m.Text,
		ChatID: m.ChatID,
		opener: u.opener,
	}
	if n.Body == "" {
		n.Body = "Sent a file"
	}
	if u.dir != nil {
		name, err := u.dir.ChatName(ctx, m.ChatID)
		if err != nil {
			u.log.Warnw("chat name lookup failed", "chat", m.ChatID, "err", err)
		}
		n.General = err == nil && name == GeneralChatName
	}
	u.notifier.Notify(n)
}
