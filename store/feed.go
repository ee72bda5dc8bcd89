package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v9"
	"go.uber.org/zap"

	"github.com/nzlov/roomsync/chat"
)

// DefaultChannel carries message row changes when none is configured.
const DefaultChannel = "messages"

// Feed announces row-level changes on a redis pub/sub channel.
type Feed struct {
	rdb     *redis.Client
	channel string
}

func NewFeed(rdb *redis.Client, channel string) *Feed {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Feed{rdb: rdb, channel: channel}
}

func (f *Feed) Publish(ctx context.Context, c chat.Change) error {
	d, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("feed marshal: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel, string(d)).Err(); err != nil {
		return fmt.Errorf("feed publish: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed. The channel is closed
// after ctx is done; undecodable payloads are logged and skipped.
func (f *Feed) Subscribe(ctx context.Context) (<-chan chat.Change, error) {
	log := zap.S().With("method", "feed", "channel", f.channel)
	ps := f.rdb.Subscribe(ctx, f.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("feed subscribe: %w", err)
	}

	out := make(chan chat.Change)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c chat.Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					log.Errorf("feed json error: %v payload=%s", err, msg.Payload)
					continue
				}
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
