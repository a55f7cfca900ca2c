package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "production", "info")

	l.Warn("no listeners found", "event", "order.created")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "no listeners found", rec["msg"])
	assert.Equal(t, "order.created", rec["event"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "local", "warn")

	l.Info("looking for listeners", "event", "a")
	assert.Empty(t, buf.String())

	l.Warn("notifications vetoed", "event", "a")
	assert.Contains(t, buf.String(), "notifications vetoed")
}

func TestSetupReplacesDefault(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev; slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(&buf, "local", "debug")
	Debug("hello", "k", "v")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	l := slog.New(h).With("source", "tests")

	l.Info("only a")
	l.Warn("both")

	assert.Contains(t, a.String(), "only a")
	assert.Contains(t, a.String(), "both")
	assert.NotContains(t, b.String(), "only a")
	assert.Contains(t, b.String(), "source=tests")
}

func TestToDocumentLiftsBusAttrs(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(now, slog.LevelWarn, "notifications vetoed", 0)
	r.AddAttrs(
		slog.String("event", "order.cancelled"),
		slog.String("pattern", `^order\.`),
		slog.String("listener", "listener#3"),
		slog.Int("attempt", 2),
	)

	doc := toDocument(r, []slog.Attr{slog.String("source", "checkout")}, "")

	assert.Equal(t, now, doc.Time)
	assert.Equal(t, "WARN", doc.Level)
	assert.Equal(t, "notifications vetoed", doc.Msg)
	assert.Equal(t, "order.cancelled", doc.Event)
	assert.Equal(t, `^order\.`, doc.Pattern)
	assert.Equal(t, "listener#3", doc.Listener)
	assert.Equal(t, "checkout", doc.Source)
	assert.Equal(t, int64(2), doc.Attrs["attempt"])
}

func TestToDocumentGroupsOtherAttrs(t *testing.T) {
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "looking for listeners", 0)
	r.AddAttrs(slog.Int("bindings", 4))

	doc := toDocument(r, nil, "bus")

	assert.Equal(t, int64(4), doc.Attrs["bus.bindings"])
	assert.Empty(t, doc.Event)
}

func TestToDocumentNoExtraAttrs(t *testing.T) {
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0)
	r.AddAttrs(slog.String("event", "a"))

	assert.Nil(t, toDocument(r, nil, "").Attrs)
}

func newIdleMongoHandler() *MongoHandler {
	h := &MongoHandler{
		level:     slog.LevelInfo,
		queue:     make(chan LogDocument, 1),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
		closeOnce: &sync.Once{},
	}
	go h.drainLoop()
	return h
}

func TestMongoHandlerCloseConcurrent(t *testing.T) {
	h := newIdleMongoHandler()
	clone := h.WithAttrs([]slog.Attr{slog.String("source", "tests")}).(*MongoHandler)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				h.Close()
			} else {
				clone.Close()
			}
		}(i)
	}

	wg.Wait()
	assert.NotPanics(t, h.Close)

	select {
	case <-h.closed:
	default:
		t.Fatal("drain loop still running after Close")
	}
}
