package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Sync feeds the store's row changes into the cache and the unread counters.
type Sync struct {
	src    ChangeSource
	cache  *Cache
	unread *Unread
	log    *zap.SugaredLogger
}

// NewSync wires src to cache. unread may be nil.
func NewSync(src ChangeSource, cache *Cache, unread *Unread, log *zap.SugaredLogger) *Sync {
	if log == nil {
		log = zap.S()
	}
	return &Sync{src: src, cache: cache, unread: unread, log: log.With("method", "sync")}
}

// Run dispatches changes until ctx is done or the source closes. The
// subscription ends with ctx.
func (s *Sync) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, err := s.src.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			s.Apply(ctx, c)
		}
	}
}

// Apply routes a single change.
func (s *Sync) Apply(ctx context.Context, c Change) {
	switch c.Type {
	case ChangeInsert:
		if s.unread != nil {
			s.unread.OnInsert(ctx, c.Message)
		}
		s.cache.Insert(c.Message)
	case ChangeUpdate:
		s.cache.Update(c.Message)
	case ChangeDelete:
		s.cache.Delete(c.Message.ChatID, c.Message.ID)
	default:
		s.log.Warnw("unknown change", "type", c.Type, "id", c.Message.ID)
	}
}
