package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestFetchUnreadCountsSelfAuthoredTail(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil, zaptest.NewLogger(t).Sugar())
	reads := &fakeReads{counts: []UnreadCount{{ChatID: "c1", Count: 5}, {ChatID: "c2", Count: 2}}}
	u := NewUnread("me", reads, cache, WithUnreadLogger(zaptest.NewLogger(t).Sugar()))

	tail := msg("mine", 10)
	tail.SenderID = "me"
	cache.Insert(msg("peer", 1))
	cache.Insert(tail)

	if err := u.FetchUnreadCounts(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n := u.Count("c1"); n != 0 {
		t.Fatalf("c1 = %d, want 0 for self-authored tail", n)
	}
	if n := u.Count("c2"); n != 2 {
		t.Fatalf("c2 = %d, want 2", n)
	}
}

func TestOpenChatForcedToZero(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil, zaptest.NewLogger(t).Sugar())
	reads := &fakeReads{counts: []UnreadCount{{ChatID: "c1", Count: 5}}}
	u := NewUnread("me", reads, cache)

	if err := u.FetchUnreadCounts(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n := u.Count("c1"); n != 5 {
		t.Fatalf("closed chat = %d, want 5", n)
	}

	u.SetOpen([]string{"c1"})
	if n := u.Count("c1"); n != 0 {
		t.Fatalf("open chat = %d, want 0", n)
	}
	if err := u.FetchUnreadCounts(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := u.Counts()["c1"]; got != 0 {
		t.Fatalf("open chat after refetch = %d, want 0", got)
	}

	u.OnInsert(ctx, msg("new", 20))
	if n := u.Count("c1"); n != 0 {
		t.Fatalf("open chat after insert = %d, want 0", n)
	}
}

func TestFetchErrorKeepsCounters(t *testing.T) {
	ctx := context.Background()
	reads := &fakeReads{counts: []UnreadCount{{ChatID: "c1", Count: 3}}}
	u := NewUnread("me", reads, NewCache(nil, zaptest.NewLogger(t).Sugar()), WithUnreadLogger(zaptest.NewLogger(t).Sugar()))
	if err := u.FetchUnreadCounts(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	reads.err = errBoom
	if err := u.FetchUnreadCounts(ctx); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if n := u.Count("c1"); n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil, zaptest.NewLogger(t).Sugar())
	reads := &fakeReads{counts: []UnreadCount{{ChatID: "c1", Count: 2}}}
	u := NewUnread("me", reads, cache)

	cache.Insert(msg("m1", 1))
	cache.Insert(msg("m2", 2))
	cache.Add(Message{ID: "temp-1", ChatID: "c1", SenderID: "me", Status: StatusSending, CreatedAt: t0.Add(time.Minute)})

	if err := u.MarkRead(ctx, "c1"); err != nil {
		t.Fatalf("mark read closed chat: %v", err)
	}
	if reads.sets != 0 {
		t.Fatal("closed chat marked read")
	}

	u.SetOpen([]string{"c1"})
	reads.counts = []UnreadCount{{ChatID: "c1", Count: 0}}
	if err := u.MarkRead(ctx, "c1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if reads.markers["c1"] != "m2" || reads.sets != 1 {
		t.Fatalf("marker = %q after %d sets, want m2", reads.markers["c1"], reads.sets)
	}

	if err := u.MarkRead(ctx, "c1"); err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if reads.sets != 1 {
		t.Fatalf("marker rewritten: %d sets", reads.sets)
	}
}

func TestOnInsertCountsAndNotifies(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil, zaptest.NewLogger(t).Sugar())
	notifier := &fakeNotifier{ch: make(chan Notification, 4)}
	opener := &fakeOpener{}
	emails := map[string]string{"peer": "peer.one@example.com"}
	u := NewUnread("me", &fakeReads{}, cache,
		WithNotifier(notifier, opener),
		WithDirectory(fakeDirectory{"general": GeneralChatName, "dm": ""}, func(id string) string { return emails[id] }),
	)

	own := Message{ID: "x", ChatID: "dm", SenderID: "me", Text: "hi"}
	u.OnInsert(ctx, own)
	u.OnInsert(ctx, Message{ID: "a", ChatID: "dm", SenderID: "peer", Text: "hello"})
	u.OnInsert(ctx, Message{ID: "b", ChatID: "general", SenderID: "ghost", File: &FileRef{URL: "u"}})
	u.Wait()

	if n := u.Count("dm"); n != 1 {
		t.Fatalf("dm = %d, want 1", n)
	}
	if n := u.Count("general"); n != 1 {
		t.Fatalf("general = %d, want 1", n)
	}

	got := map[string]Notification{}
	for i := 0; i < 2; i++ {
		n := <-notifier.ch
		got[n.ChatID] = n
	}
	select {
	case n := <-notifier.ch:
		t.Fatalf("unexpected notification %#v", n)
	default:
	}

	dm := got["dm"]
	if dm.Title != "peer.one" || dm.Body != "hello" || dm.General {
		t.Fatalf("dm notification = %#v", dm)
	}
	gen := got["general"]
	if gen.Title != "Unknown" || gen.Body != "Sent a file" || !gen.General {
		t.Fatalf("general notification = %#v", gen)
	}

	dm.Click()
	gen.Click()
	want := []opened{{"peer.one", "peer.one", "dm"}, {"General", "/livechat", "general"}}
	if len(opener.opened) != 2 || opener.opened[0] != want[0] || opener.opened[1] != want[1] {
		t.Fatalf("opened = %v, want %v", opener.opened, want)
	}
	if opener.focused != 2 {
		t.Fatalf("focused = %d, want 2", opener.focused)
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"ada@example.com": "ada",
		"":                "Unknown",
		"@example.com":    "Unknown",
		"plain":           "plain",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
