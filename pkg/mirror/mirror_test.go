package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/patternbus/pkg/bus"
)

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	messages [][]byte
	err      error

	started chan struct{}
	gate    chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}

	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.channels = append(f.channels, channel)
	f.messages = append(f.messages, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func quiet() Option { return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))) }

func TestNotifyPublishesMessage(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "events", 2, quiet())

	res, err := m.Notify("order.created", `^order\.`, &bus.Event{Payload: map[string]any{"id": 7}, Source: "checkout", Timestamp: 1700000000000})
	require.NoError(t, err)
	assert.Equal(t, bus.Continue, res)

	m.Close()

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "events", pub.channels[0])

	var msg Message
	require.NoError(t, json.Unmarshal(pub.messages[0], &msg))
	assert.Equal(t, "order.created", msg.Event)
	assert.Equal(t, `^order\.`, msg.Pattern)
	assert.Equal(t, "checkout", msg.Source)
	assert.Equal(t, int64(1700000000000), msg.Timestamp)
	assert.Equal(t, map[string]any{"id": float64(7)}, msg.Payload)

	assert.Equal(t, Stats{Published: 1}, m.Stats())
}

func TestNotifyPublishErrorIsCounted(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	m := New(pub, "events", 1, quiet())

	res, err := m.Notify("a", "a", &bus.Event{})
	require.NoError(t, err)
	assert.Equal(t, bus.Continue, res)

	m.Close()
	assert.Equal(t, Stats{Failed: 1}, m.Stats())
}

func TestNotifyEncodeErrorIsCounted(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "events", 1, quiet())
	defer m.Close()

	res, err := m.Notify("a", "a", &bus.Event{Payload: make(chan int)})
	require.NoError(t, err)
	assert.Equal(t, bus.Continue, res)
	assert.Equal(t, uint64(1), m.Stats().Failed)
}

func TestNotifyDropsWhenBacklogFull(t *testing.T) {
	pub := &fakePublisher{started: make(chan struct{}, 8), gate: make(chan struct{})}
	m := New(pub, "events", 1, quiet())

	// One in flight on the only worker, two in the backlog.
	_, _ = m.Notify("a", "a", &bus.Event{})
	<-pub.started
	_, _ = m.Notify("b", "b", &bus.Event{})
	_, _ = m.Notify("c", "c", &bus.Event{})

	res, err := m.Notify("d", "d", &bus.Event{})
	require.NoError(t, err)
	assert.Equal(t, bus.Continue, res)
	assert.Equal(t, uint64(1), m.Stats().Dropped)

	close(pub.gate)
	m.Close()

	assert.Equal(t, Stats{Published: 3, Dropped: 1}, m.Stats())
}

func TestNotifyAfterCloseDrops(t *testing.T) {
	m := New(&fakePublisher{}, "events", 1, quiet())
	m.Close()
	m.Close()

	_, err := m.Notify("a", "a", &bus.Event{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Dropped: 1}, m.Stats())
}

func TestMirrorAsBusListener(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "events", 2, quiet())
	b := bus.New(bus.WithLogger(nil), bus.WithMetrics(false), bus.WithSource("svc"))
	b.Bind(`^order\.`, m)

	require.NoError(t, b.Fire("order.created", nil))
	require.NoError(t, b.Fire("order.created", nil))
	require.NoError(t, b.Fire("user.created", nil))
	m.Close()

	assert.Equal(t, uint64(2), m.Stats().Published)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.messages[0], &msg))
	assert.Equal(t, "svc", msg.Source)
}

func TestPoolRecoversPanics(t *testing.T) {
	var got []any
	var mu sync.Mutex
	p := newPool(1, func(v any) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	require.NoError(t, p.submit(func() { panic("boom") }))
	ran := make(chan struct{})
	require.NoError(t, p.submit(func() { close(ran) }))
	<-ran
	p.shutdown()

	assert.Equal(t, []any{"boom"}, got)
	assert.ErrorIs(t, p.submit(func() {}), ErrPoolClosed)
}
