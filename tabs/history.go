// Package tabs keeps the open tabs of a workspace session and a linear
// back/forward history over the items opened in them.
package tabs

// Entry is one visited item.
type Entry struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	ChatID string `json:"chatId,omitempty"`
}

// History is a browser-style stack with a cursor; -1 means empty.
// It is not safe for concurrent use.
type History struct {
	stack  []Entry
	cursor int
}

func NewHistory() *History {
	return &History{cursor: -1}
}

// Push records e as the newest visit. Entries after the cursor are
// discarded. Pushing the entry already under the cursor does nothing.
func (h *History) Push(e Entry) {
	if h.cursor >= 0 && h.stack[h.cursor].ID == e.ID {
		return
	}
	h.stack = append(h.stack[:h.cursor+1], e)
	h.cursor = len(h.stack) - 1
}

// Back moves the cursor one step back and returns the entry under it.
func (h *History) Back() (Entry, bool) {
	if h.cursor <= 0 {
		return Entry{}, false
	}
	h.cursor--
	return h.stack[h.cursor], true
}

// Forward moves the cursor one step forward and returns the entry under it.
func (h *History) Forward() (Entry, bool) {
	if h.cursor >= len(h.stack)-1 {
		return Entry{}, false
	}
	h.cursor++
	return h.stack[h.cursor], true
}

func (h *History) Current() (Entry, bool) {
	if h.cursor < 0 {
		return Entry{}, false
	}
	return h.stack[h.cursor], true
}

func (h *History) CanBack() bool    { return h.cursor > 0 }
func (h *History) CanForward() bool { return h.cursor < len(h.stack)-1 }
func (h *History) Cursor() int      { return h.cursor }
func (h *History) Len() int         { return len(h.stack) }

func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.stack...)
}
