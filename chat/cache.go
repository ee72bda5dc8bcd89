package chat

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// PageSize is the number of messages fetched per history page.
const PageSize = 50

// Cache holds, per chat, the messages shown to the user: ascending by
// CreatedAt with at most one entry per id. Readers get copies.
type Cache struct {
	src PageSource
	log *zap.SugaredLogger

	mu    sync.Mutex
	chats map[string][]Message
	pages map[string]int
}

func NewCache(src PageSource, log *zap.SugaredLogger) *Cache {
	if log == nil {
		log = zap.S()
	}
	return &Cache{
		src:   src,
		log:   log.With("method", "cache"),
		chats: map[string][]Message{},
		pages: map[string]int{},
	}
}

// LoadPage fetches page (0 is the newest) of chatID and merges it in. On
// error the cache is left unchanged.
func (c *Cache) LoadPage(ctx context.Context, chatID string, page int) error {
	if c.src == nil {
		return fmt.Errorf("load page %s/%d: no page source", chatID, page)
	}
	newest, err := c.src.ListMessages(ctx, chatID, page*PageSize, PageSize)
	if err != nil {
		return fmt.Errorf("load page %s/%d: %w", chatID, page, err)
	}
	asc := make([]Message, len(newest))
	for i, m := range newest {
		asc[len(newest)-1-i] = m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[chatID] = Merge(c.chats[chatID], asc)
	c.log.Debugw("page loaded", "chat", chatID, "page", page, "fetched", len(newest), "cached", len(c.chats[chatID]))
	return nil
}

// NextPage loads the page after the last one requested for chatID.
func (c *Cache) NextPage(ctx context.Context, chatID string) error {
	c.mu.Lock()
	c.pages[chatID]++
	page := c.pages[chatID]
	c.mu.Unlock()

	if err := c.LoadPage(ctx, chatID, page); err != nil {
		c.mu.Lock()
		if c.pages[chatID] == page {
			c.pages[chatID]--
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Page is the index of the oldest page requested for chatID.
func (c *Cache) Page(chatID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages[chatID]
}

func (c *Cache) Messages(chatID string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.chats[chatID]...)
}

// Last returns the newest cached message of chatID.
func (c *Cache) Last(chatID string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.chats[chatID]
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// LastConfirmed returns the newest message that is not a placeholder.
func (c *Cache) LastConfirmed(chatID string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.chats[chatID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].Temporary() {
			return msgs[i], true
		}
	}
	return Message{}, false
}

// Add appends an optimistic entry, keeping the chat ascending by CreatedAt.
func (c *Cache) Add(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.chats[m.ChatID]
	if indexOf(msgs, m.ID) >= 0 {
		return
	}
	msgs = append(append([]Message(nil), msgs...), m)
	sortByTime(msgs)
	c.chats[m.ChatID] = msgs
}

// Insert adds a message announced by the store unless its id is cached.
func (c *Cache) Insert(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.chats[m.ChatID]
	if indexOf(msgs, m.ID) >= 0 {
		return false
	}
	msgs = append(append([]Message(nil), msgs...), m)
	sortByTime(msgs)
	c.chats[m.ChatID] = msgs
	return true
}

func (c *Cache) Update(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.chats[m.ChatID]
	i := indexOf(msgs, m.ID)
	if i < 0 {
		return
	}
	msgs = append([]Message(nil), msgs...)
	msgs[i] = m
	c.chats[m.ChatID] = msgs
}

func (c *Cache) Delete(chatID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.chats[chatID]
	i := indexOf(msgs, id)
	if i < 0 {
		return
	}
	out := make([]Message, 0, len(msgs)-1)
	out = append(out, msgs[:i]...)
	c.chats[chatID] = append(out, msgs[i+1:]...)
}

// Reconcile applies Reconcile to the cached messages of chatID. The confirmed
// record carries the store's CreatedAt, so the chat is sorted again; entries
// with equal timestamps keep their order.
func (c *Cache) Reconcile(chatID, tempID string, status Status, confirmed *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := Reconcile(c.chats[chatID], tempID, status, confirmed)
	sortByTime(msgs)
	c.chats[chatID] = msgs
}

// MergeFetched replaces the confirmed messages of chatID with fetched,
// keeping entries still sending or failed.
func (c *Cache) MergeFetched(chatID string, fetched []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var local []Message
	for _, m := range c.chats[chatID] {
		if m.Status == StatusSending || m.Status == StatusFailed {
			local = append(local, m)
		}
	}
	c.chats[chatID] = Merge(local, fetched)
}

func indexOf(msgs []Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
