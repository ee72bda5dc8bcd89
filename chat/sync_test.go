package chat

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestSyncDispatchesChanges(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	cache := NewCache(nil, log)
	u := NewUnread("me", &fakeReads{}, cache, WithUnreadLogger(log))
	src := &fakeSource{ch: make(chan Change), stopped: make(chan struct{})}
	s := NewSync(src, cache, u, log)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	edited := msg("a", 1)
	edited.Text = "edited"
	for _, c := range []Change{
		{Type: ChangeInsert, Message: msg("a", 1)},
		{Type: ChangeInsert, Message: msg("b", 2)},
		{Type: ChangeInsert, Message: msg("b", 2)},
		{Type: ChangeUpdate, Message: edited},
		{Type: ChangeDelete, Message: Message{ID: "b", ChatID: "c1"}},
		{Type: "TRUNCATE"},
	} {
		src.ch <- c
	}
	src.ch <- Change{Type: ChangeInsert, Message: msg("c", 3)}
	// two no-op changes so "c" has been applied before cancelling
	src.ch <- Change{Type: "NOOP"}
	src.ch <- Change{Type: "NOOP"}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	select {
	case <-src.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not released")
	}

	got := cache.Messages("c1")
	if !reflect.DeepEqual(ids(got), []string{"a", "c"}) {
		t.Fatalf("ids = %v", ids(got))
	}
	if got[0].Text != "edited" {
		t.Fatalf("update lost: %#v", got[0])
	}
	// a, b, b (duplicate still counts as an announced row), c
	if n := u.Count("c1"); n != 4 {
		t.Fatalf("unread = %d, want 4", n)
	}
}
