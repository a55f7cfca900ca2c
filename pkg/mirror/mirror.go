// Package mirror republishes fired events to a Redis pub/sub channel.
//
// A Mirror is an ordinary bus listener. Bind it to the names you want to
// see outside the process:
//
//	rdb, err := mirror.Connect(ctx)
//	m := mirror.New(rdb, config.MirrorChannel(), config.MirrorWorkers())
//	defer m.Close()
//	b.Bind(`^order\.`, m)
//
// Publishing happens on a small worker pool, so a slow Redis never holds
// up Fire. A Mirror never vetoes and never returns an error to the bus:
// encode failures, a full backlog and Redis errors are logged at warn and
// counted in Stats.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shashiranjanraj/patternbus/config"
	"github.com/shashiranjanraj/patternbus/pkg/bus"
	"github.com/shashiranjanraj/patternbus/pkg/logger"
)

const publishTimeout = 2 * time.Second

// Publisher is the part of *redis.Client a Mirror uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Message is the JSON document published for every mirrored event.
type Message struct {
	Event     string `json:"event"`
	Pattern   string `json:"pattern"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// Stats counts what happened to mirrored events.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// Mirror is a bus.Listener that forwards events to Redis.
type Mirror struct {
	pub     Publisher
	channel string
	pool    *pool
	log     bus.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets where publish problems are reported. Defaults to logger.L.
func WithLogger(l bus.Logger) Option {
	return func(m *Mirror) {
		if l == nil {
			l = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		m.log = l
	}
}

// Connect opens a Redis client from REDIS_ADDR / REDIS_PASSWORD and pings it.
func Connect(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr(),
		Password: config.RedisPassword(),
		DB:       0,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("mirror: redis ping: %w", err)
	}
	return rdb, nil
}

// New returns a Mirror publishing to channel with the given number of workers.
func New(pub Publisher, channel string, workers int, opts ...Option) *Mirror {
	m := &Mirror{
		pub:     pub,
		channel: channel,
		log:     logger.L,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pool = newPool(workers, func(v any) {
		m.failed.Add(1)
		m.log.Warn("mirror publish panicked", "channel", m.channel, "panic", v)
	})
	return m
}

// Notify implements bus.Listener.
func (m *Mirror) Notify(name, pattern string, evt *bus.Event) (bus.Result, error) {
	data, err := json.Marshal(Message{
		Event:     name,
		Pattern:   pattern,
		Source:    evt.Source,
		Timestamp: evt.Timestamp,
		Payload:   evt.Payload,
	})
	if err != nil {
		m.failed.Add(1)
		m.log.Warn("mirror encode failed", "event", name, "error", err)
		return bus.Continue, nil
	}

	err = m.pool.submit(func() { m.publish(name, data) })
	switch {
	case errors.Is(err, ErrPoolFull):
		m.dropped.Add(1)
		m.log.Warn("mirror backlog full, event dropped", "event", name, "channel", m.channel)
	case err != nil:
		m.dropped.Add(1)
		m.log.Warn("mirror closed, event dropped", "event", name)
	}
	return bus.Continue, nil
}

func (m *Mirror) publish(name string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := m.pub.Publish(ctx, m.channel, data).Err(); err != nil {
		m.failed.Add(1)
		m.log.Warn("mirror publish failed", "event", name, "channel", m.channel, "error", err)
		return
	}
	m.published.Add(1)
}

// Stats returns the current counters.
func (m *Mirror) Stats() Stats {
	return Stats{
		Published: m.published.Load(),
		Dropped:   m.dropped.Load(),
		Failed:    m.failed.Load(),
	}
}

// Close waits for queued publishes to finish. Later events are dropped.
func (m *Mirror) Close() {
	m.pool.shutdown()
}
