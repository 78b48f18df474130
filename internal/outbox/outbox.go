package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event kinds.
const (
	KindToast   = "toast"
	KindOpen    = "open"
	KindChanged = "changed"
)

// Event is one effect waiting for the browser to render it.
type Event struct {
	Kind    string    `json:"kind"`
	Level   string    `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
	URL     string    `json:"url,omitempty"`
	Field   string    `json:"field,omitempty"`
	At      time.Time `json:"at"`
}

// Outbox is the abstraction over different backends.
type Outbox interface {
	Push(ctx context.Context, sessionID string, evt Event) error
	Drain(ctx context.Context, sessionID string) ([]Event, error)
	Discard(ctx context.Context, sessionID string) error
}

// InMemory keeps a bounded list of events per session.
type InMemory struct {
	mu     sync.Mutex
	limit  int
	events map[string][]Event
}

// NewInMemory creates an outbox holding at most limit events per session;
// the oldest are dropped first.
func NewInMemory(limit int) *InMemory {
	if limit <= 0 {
		limit = 64
	}
	return &InMemory{limit: limit, events: make(map[string][]Event)}
}

// Push appends an event.
func (o *InMemory) Push(_ context.Context, sessionID string, evt Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := append(o.events[sessionID], evt)
	if len(list) > o.limit {
		list = list[len(list)-o.limit:]
	}
	o.events[sessionID] = list
	return nil
}

// Drain returns and removes all pending events in push order.
func (o *InMemory) Drain(_ context.Context, sessionID string) ([]Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.events[sessionID]
	delete(o.events, sessionID)
	return list, nil
}

// Discard drops pending events.
func (o *InMemory) Discard(_ context.Context, sessionID string) error {
	o.mu.Lock()
	delete(o.events, sessionID)
	o.mu.Unlock()
	return nil
}

// Redis keeps one list per session using RPUSH and an atomic LRANGE+DEL drain.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	limit  int64
}

// NewRedis builds a Redis outbox. Lists expire ttl after the last push.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, limit int) *Redis {
	if prefix == "" {
		prefix = "kiosk:outbox"
	}
	if limit <= 0 {
		limit = 64
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, limit: int64(limit)}
}

func (o *Redis) key(sessionID string) string {
	return o.prefix + ":" + sessionID
}

// Push appends an event.
func (o *Redis) Push(ctx context.Context, sessionID string, evt Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	key := o.key(sessionID)
	pipe := o.client.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.LTrim(ctx, key, -o.limit, -1)
	if o.ttl > 0 {
		pipe.Expire(ctx, key, o.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Drain returns and removes all pending events in push order.
func (o *Redis) Drain(ctx context.Context, sessionID string) ([]Event, error) {
	key := o.key(sessionID)
	pipe := o.client.TxPipeline()
	rng := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain events: %w", err)
	}

	raw := rng.Val()
	out := make([]Event, 0, len(raw))
	for _, s := range raw {
		var evt Event
		if err := json.Unmarshal([]byte(s), &evt); err != nil {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

// Discard drops pending events.
func (o *Redis) Discard(ctx context.Context, sessionID string) error {
	return o.client.Del(ctx, o.key(sessionID)).Err()
}
