package redis

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/octabyte/mmm-dashboard/auth"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultSessionEventsChannel = "mmm:session_events"

// PublishSessionEvent broadcasts ev as JSON on channel.
func PublishSessionEvent(ctx context.Context, client *redis.Client, channel string, ev auth.SessionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// SessionEvents subscribes to channel and decodes each message into a
// SessionEvent. The returned channel is closed once ctx is done. It returns
// after the subscription is confirmed, so no later publish is missed.
func SessionEvents(ctx context.Context, client *redis.Client, channel string) (<-chan auth.SessionEvent, error) {
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan auth.SessionEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev auth.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.LogWarn("dropping malformed session event",
						zap.String("channel", channel),
						zap.Error(err),
					)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
