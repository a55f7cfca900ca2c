// MongoHandler is an slog.Handler that stores dispatch log records in a
// MongoDB collection so fired events, vetoes and misses can be queried
// after the fact. It never blocks the bus:
//
//   - Records are enqueued into a buffered channel (non-blocking).
//   - A single background goroutine drains the channel with InsertMany.
//   - If the channel is full the record is dropped.
//   - Close() flushes what is queued and disconnects.

package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shashiranjanraj/patternbus/config"
)

const (
	mongoQueueSize = 4096
	mongoBatchSize = 50
	mongoDrainTick = 2 * time.Second
)

// LogDocument is the shape written to MongoDB. The bus attributes
// (event, pattern, listener, source) get their own fields so they can be
// indexed; everything else lands in Attrs.
type LogDocument struct {
	Time     time.Time `bson:"time"`
	Level    string    `bson:"level"`
	Msg      string    `bson:"msg"`
	Event    string    `bson:"event,omitempty"`
	Pattern  string    `bson:"pattern,omitempty"`
	Listener string    `bson:"listener,omitempty"`
	Source   string    `bson:"source,omitempty"`
	Attrs    bson.M    `bson:"attrs,omitempty"`
}

// MongoHandler is a slog.Handler that writes to MongoDB asynchronously.
type MongoHandler struct {
	level  slog.Leveler
	col    *mongo.Collection
	client *mongo.Client
	queue  chan LogDocument
	done   chan struct{}
	closed chan struct{}
	attrs  []slog.Attr
	group  string

	// shared with clones made by WithAttrs/WithGroup
	closeOnce *sync.Once
}

// NewMongoHandler connects to uri and returns a handler writing records at
// or above level into db.collection. The caller must eventually call Close().
func NewMongoHandler(uri, db, collection string, level slog.Leveler) (*MongoHandler, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(4)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo_handler: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo_handler: ping: %w", err)
	}

	col := client.Database(db).Collection(collection)

	// Lookups are by event name, newest first.
	_, _ = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "event", Value: 1}, {Key: "time", Value: -1}},
	})

	h := &MongoHandler{
		level:  level,
		col:    col,
		client: client,
		queue:  make(chan LogDocument, mongoQueueSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),

		closeOnce: &sync.Once{},
	}
	go h.drainLoop()
	return h, nil
}

// ─── slog.Handler interface ───────────────────────────────────────────────────

func (h *MongoHandler) Enabled(_ context.Context, l slog.Level) bool {
	if h.level == nil {
		return true
	}
	return l >= h.level.Level()
}

func (h *MongoHandler) Handle(_ context.Context, r slog.Record) error {
	doc := toDocument(r, h.attrs, h.group)
	select {
	case h.queue <- doc:
	default:
		// dropped: logging must never block dispatch
	}
	return nil
}

func (h *MongoHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *MongoHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group += "." + name
	}
	return &clone
}

// toDocument flattens a record plus handler attrs into a LogDocument.
func toDocument(r slog.Record, base []slog.Attr, group string) LogDocument {
	doc := LogDocument{
		Time:  r.Time,
		Level: r.Level.String(),
		Msg:   r.Message,
		Attrs: bson.M{},
	}

	put := func(a slog.Attr) bool {
		key := a.Key
		switch key {
		case "event":
			doc.Event = a.Value.String()
			return true
		case "pattern":
			doc.Pattern = a.Value.String()
			return true
		case "listener":
			doc.Listener = a.Value.String()
			return true
		case "source":
			doc.Source = a.Value.String()
			return true
		}
		if group != "" {
			key = group + "." + key
		}
		doc.Attrs[key] = a.Value.Resolve().Any()
		return true
	}

	for _, a := range base {
		put(a)
	}
	r.Attrs(put)

	if len(doc.Attrs) == 0 {
		doc.Attrs = nil
	}
	return doc
}

// ─── Internals ────────────────────────────────────────────────────────────────

func (h *MongoHandler) drainLoop() {
	defer close(h.closed)

	ticker := time.NewTicker(mongoDrainTick)
	defer ticker.Stop()

	batch := make([]interface{}, 0, mongoBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = h.col.InsertMany(ctx, batch) // best effort
		batch = batch[:0]
	}

	for {
		select {
		case doc := <-h.queue:
			batch = append(batch, doc)
			if len(batch) >= mongoBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-h.done:
			for len(h.queue) > 0 {
				batch = append(batch, <-h.queue)
			}
			flush()
			return
		}
	}
}

// Close flushes pending records and disconnects. Safe to call more than
// once and from several goroutines, on the handler or any of its clones.
func (h *MongoHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.closed

		if h.client == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.client.Disconnect(ctx)
	})
	<-h.closed
}

// AttachMongo adds a MongoDB sink next to L when LOG_MONGO_URI is set.
// It returns a close function (a no-op when no sink was attached).
func AttachMongo() (func(), error) {
	uri := config.LogMongoURI()
	if uri == "" {
		return func() {}, nil
	}

	level := ParseLevel(config.LogLevel())
	mh, err := NewMongoHandler(uri, config.LogMongoDB(), config.LogMongoCollection(), level)
	if err != nil {
		return func() {}, err
	}
	Use(NewMultiHandler(L.Handler(), mh))
	return mh.Close, nil
}

// ─── Multi-handler fan-out ─────────────────────────────────────────────────────

// MultiHandler fans out to multiple slog.Handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler returns a handler that sends each record to all hs.
func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}
