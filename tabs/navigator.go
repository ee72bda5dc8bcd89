package tabs

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Kind is what a tab shows.
type Kind string

const (
	KindUnknown  Kind = ""
	KindLiveChat Kind = "livechat"
	KindDoc      Kind = "doc"
	KindDirect   Kind = "direct"
	KindTasks    Kind = "tasks"
)

// LiveChatID is the tab id of the workspace-wide chat.
const LiveChatID = "/livechat"

// User is a workspace member as far as tab routing is concerned.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Classifier decides what an id opens. KindUnknown ids are not opened.
type Classifier func(id string) Kind

// ClassifyWith routes usernames to direct chats and user ids to task tabs;
// "/livechat", "/docs" and numeric ids keep their fixed kinds.
func ClassifyWith(users []User) Classifier {
	return func(id string) Kind {
		for _, u := range users {
			if name, _, _ := strings.Cut(u.Email, "@"); name != "" && name == id {
				return KindDirect
			}
		}
		for _, u := range users {
			if u.ID == id {
				return KindTasks
			}
		}
		return classify(id)
	}
}

func classify(id string) Kind {
	switch {
	case id == LiveChatID:
		return KindLiveChat
	case id == "/docs":
		return KindDoc
	}
	if _, err := strconv.ParseFloat(id, 64); err == nil {
		return KindDoc
	}
	return KindUnknown
}

// Tab is one open tab.
type Tab struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	ChatID string `json:"chatId,omitempty"`
	Kind   Kind   `json:"-"`
}

func (t Tab) entry() Entry { return Entry{ID: t.ID, Title: t.Title, ChatID: t.ChatID} }

type NavOption func(*Navigator)

func WithClassifier(c Classifier) NavOption {
	return func(n *Navigator) { n.classify = c }
}

func WithLogger(log *zap.SugaredLogger) NavOption {
	return func(n *Navigator) { n.log = log }
}

// Navigator owns the open tabs, the active tab and the visit history.
// Going back or forward to an item whose tab was closed opens it again.
type Navigator struct {
	classify Classifier
	log      *zap.SugaredLogger

	mu        sync.Mutex
	tabs      []Tab
	active    int
	hist      *History
	observers map[int]func([]string)
	nextObs   int
}

func NewNavigator(opts ...NavOption) *Navigator {
	n := &Navigator{
		classify:  classify,
		active:    -1,
		hist:      NewHistory(),
		observers: map[int]func([]string){},
	}
	for _, o := range opts {
		o(n)
	}
	if n.log == nil {
		n.log = zap.S()
	}
	n.log = n.log.With("method", "tabs")
	return n
}

// Open focuses the tab with id, or opens a new one, and records the visit.
// Ids the classifier does not know are ignored.
func (n *Navigator) Open(title, id, chatID string) {
	n.change(func() {
		if n.openLocked(title, id, chatID) {
			n.hist.Push(Entry{ID: id, Title: title, ChatID: chatID})
		}
	})
}

// openLocked must be called with mu held.
func (n *Navigator) openLocked(title, id, chatID string) bool {
	if i := n.indexOf(id); i >= 0 {
		n.active = i
		return true
	}
	kind := n.classify(id)
	if kind == KindUnknown {
		n.log.Warnw("open unknown tab", "id", id)
		return false
	}
	if kind == KindDirect {
		title = id
	}
	n.tabs = append(n.tabs, Tab{ID: id, Title: title, ChatID: chatID, Kind: kind})
	n.active = len(n.tabs) - 1
	return true
}

// Close removes the tab with id. The tab left of it becomes active when it
// was the active one.
func (n *Navigator) Close(id string) {
	n.change(func() {
		i := n.indexOf(id)
		if i < 0 {
			return
		}
		n.tabs = append(n.tabs[:i:i], n.tabs[i+1:]...)
		switch {
		case len(n.tabs) == 0:
			n.active = -1
		case i == n.active:
			n.active = max0(i - 1)
		case i < n.active:
			n.active--
		}
	})
}

// Activate focuses an open tab without recording a visit.
func (n *Navigator) Activate(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	i := n.indexOf(id)
	if i < 0 {
		return false
	}
	n.active = i
	return true
}

// Back steps the history back and shows that entry, reopening its tab if
// it was closed.
func (n *Navigator) Back() (Tab, bool) {
	return n.step(n.hist.Back)
}

// Forward steps the history forward, reopening a closed tab like Back.
func (n *Navigator) Forward() (Tab, bool) {
	return n.step(n.hist.Forward)
}

func (n *Navigator) step(move func() (Entry, bool)) (Tab, bool) {
	var (
		tab Tab
		ok  bool
	)
	n.change(func() {
		e, moved := move()
		if !moved {
			return
		}
		if !n.openLocked(e.Title, e.ID, e.ChatID) {
			return
		}
		tab, ok = n.tabs[n.active], true
	})
	return tab, ok
}

// SetTitle renames an open tab, e.g. after a live title update.
func (n *Navigator) SetTitle(id, title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if i := n.indexOf(id); i >= 0 && title != "" {
		n.tabs[i].Title = title
	}
}

func (n *Navigator) Active() (Tab, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active < 0 || n.active >= len(n.tabs) {
		return Tab{}, false
	}
	return n.tabs[n.active], true
}

func (n *Navigator) Tabs() []Tab {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Tab(nil), n.tabs...)
}

func (n *Navigator) IsOpen(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.indexOf(id) >= 0
}

// History returns the visited entries and the cursor.
func (n *Navigator) History() ([]Entry, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hist.Entries(), n.hist.Cursor()
}

func (n *Navigator) CanForward() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hist.CanForward()
}

// OpenChats returns the sorted chat ids shown in open tabs.
func (n *Navigator) OpenChats() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.openChatsLocked()
}

func (n *Navigator) openChatsLocked() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range n.tabs {
		if t.ChatID != "" && !seen[t.ChatID] {
			seen[t.ChatID] = true
			out = append(out, t.ChatID)
		}
	}
	sort.Strings(out)
	return out
}

// Observe calls fn with the open chat ids whenever that set changes, and
// once right away. The returned func stops the calls.
func (n *Navigator) Observe(fn func(chatIDs []string)) func() {
	n.mu.Lock()
	id := n.nextObs
	n.nextObs++
	n.observers[id] = fn
	chats := n.openChatsLocked()
	n.mu.Unlock()

	fn(chats)
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.observers, id)
	}
}

// change runs fn under the lock and notifies observers if the open chat set
// differs afterwards.
func (n *Navigator) change(fn func()) {
	n.mu.Lock()
	before := n.openChatsLocked()
	fn()
	after := n.openChatsLocked()
	var obs []func([]string)
	if !equal(before, after) {
		for _, o := range n.observers {
			obs = append(obs, o)
		}
	}
	n.mu.Unlock()

	for _, o := range obs {
		o(append([]string(nil), after...))
	}
}

type saved struct {
	Tabs   []Tab `json:"tabs"`
	Active int   `json:"activeTabIndex"`
}

// Save writes the open tabs and the active index as JSON.
func (n *Navigator) Save(w io.Writer) error {
	n.mu.Lock()
	s := saved{Tabs: append([]Tab{}, n.tabs...), Active: n.active}
	n.mu.Unlock()
	if err := json.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("save tabs: %w", err)
	}
	return nil
}

// Restore replaces the open tabs with what Save wrote. Tabs the classifier
// no longer knows are skipped; history starts empty.
func (n *Navigator) Restore(r io.Reader) error {
	var s saved
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return fmt.Errorf("restore tabs: %w", err)
	}
	n.change(func() {
		n.tabs = n.tabs[:0]
		for _, t := range s.Tabs {
			t.Kind = n.classify(t.ID)
			if t.Kind == KindUnknown || n.indexOf(t.ID) >= 0 {
				continue
			}
			n.tabs = append(n.tabs, t)
		}
		n.active = s.Active
		if n.active >= len(n.tabs) {
			n.active = len(n.tabs) - 1
		}
		if n.active < 0 && len(n.tabs) > 0 {
			n.active = 0
		}
		n.hist = NewHistory()
	})
	return nil
}

func (n *Navigator) indexOf(id string) int {
	for i, t := range n.tabs {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}
