package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const webhookCountersKey = "nutrinea:counters:webhooks"

// unknownEvent labels deliveries that carried no event name.
const unknownEvent = "UNKNOWN"

// WebhookCounter keeps per event and per outcome delivery counts in a Redis hash.
type WebhookCounter struct {
	client *redis.Client
	key    string
}

// NewWebhookCounter returns nil for a nil client so callers can skip counting.
func NewWebhookCounter(client *redis.Client) *WebhookCounter {
	if client == nil {
		return nil
	}
	return &WebhookCounter{client: client, key: webhookCountersKey}
}

// Add increments the counter for event and status. Failures are only logged.
func (c *WebhookCounter) Add(ctx context.Context, event, status string) {
	if err := c.client.HIncrBy(ctx, c.key, field(event, status), 1).Err(); err != nil {
		log.Warnf("[Counter] could not count %s/%s: %v", event, status, err)
	}
}

// Snapshot returns counts keyed by event, then by status.
func (c *WebhookCounter) Snapshot(ctx context.Context) (map[string]map[string]int64, error) {
	data, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	return parse(data), nil
}

// Drain returns the current counts and resets them. The hash is renamed to a
// temporary key first so increments that race with the drain are kept.
func (c *WebhookCounter) Drain(ctx context.Context) (map[string]map[string]int64, error) {
	tmpKey := fmt.Sprintf("%s:tmp:%d", c.key, time.Now().UnixNano())
	if err := c.client.Rename(ctx, c.key, tmpKey).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return map[string]map[string]int64{}, nil
		}
		return nil, err
	}
	defer c.client.Del(ctx, tmpKey)

	data, err := c.client.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return nil, err
	}
	return parse(data), nil
}

func field(event, status string) string {
	if event == "" {
		event = unknownEvent
	}
	return event + "|" + status
}

func parse(data map[string]string) map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	for k, v := range data {
		event, status, ok := strings.Cut(k, "|")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		if out[event] == nil {
			out[event] = make(map[string]int64)
		}
		out[event][status] += n
	}
	return out
}
