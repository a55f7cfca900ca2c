package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/shashiranjanraj/patternbus/pkg/metrics"
)

// Bus dispatches fired events to listeners bound by regular expression.
// Create one with New and share the pointer between producers and consumers.
type Bus struct {
	mu       sync.Mutex
	registry registry
	cache    cache
	lastID   Handle

	log     Logger
	now     func() time.Time
	source  string
	metrics bool
}

// New returns an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		registry: newRegistry(),
		cache:    newCache(),
		log:      defaultLogger(),
		now:      time.Now,
		source:   DefaultSource,
		metrics:  true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind registers l under pattern and returns its handle.
//
// pattern is a regular expression tested against event names; it is not
// validated here. Every name already resolved by an earlier Fire that
// pattern matches gets l appended, so the next Fire of that name reaches
// it. Nothing is delivered retroactively.
func (b *Bus) Bind(pattern string, l Listener) Handle {
	if l == nil {
		panic(ErrNilListener)
	}

	b.mu.Lock()
	b.lastID++
	bd := newBinding(b.lastID, pattern, l)
	b.registry.add(bd)
	extended := b.cache.backfill(bd)
	b.mu.Unlock()

	if b.metrics {
		metrics.BindsTotal.Inc()
		metrics.BackfillsTotal.Add(float64(len(extended)))
	}
	return bd.handle
}

// BindFunc is Bind for a plain function.
func (b *Bus) BindFunc(pattern string, fn func(name, pattern string, evt *Event) (Result, error)) Handle {
	if fn == nil {
		panic(ErrNilListener)
	}
	return b.Bind(pattern, ListenerFunc(fn))
}

// Unbind removes the binding identified by h from the registry and from
// every cached name. It reports whether h was bound.
func (b *Bus) Unbind(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := map[Handle]struct{}{h: {}}
	if b.registry.remove(set) == 0 {
		return false
	}
	b.cache.forget(set)

	if b.metrics {
		metrics.UnbindsTotal.Inc()
	}
	return true
}

// Flush forgets the listeners resolved for name and unbinds them.
//
// Exactly the handles held by name's cache entry are removed from the
// registry, whether they were found by a scan or added by Bind afterwards.
// Other cached names lose them too. The next Fire of name scans the
// registry again. Flushing a name without an entry returns ErrNotCached.
func (b *Bus) Flush(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.cache.drop(name)
	if !ok {
		return fmt.Errorf("flush %q: %w", name, ErrNotCached)
	}
	b.registry.remove(set)
	b.cache.forget(set)

	if b.metrics {
		metrics.FlushesTotal.Inc()
	}
	return nil
}

// Fire delivers evt to every listener whose pattern matches name, in bind
// order, until one returns Veto.
//
// The first Fire of a name scans all bindings and remembers the ones it
// invoked; later calls replay that list. Fire returns a *PatternError if a
// binding's pattern does not compile, or a *ListenerError if a listener
// fails; delivery stops at that point. A name nobody listens to is not an
// error.
func (b *Bus) Fire(name string, evt *Event) error {
	if evt == nil {
		evt = &Event{}
	}
	if evt.Source == "" {
		evt.Source = b.source
	}
	evt.Timestamp = b.now().UnixMilli()

	b.mu.Lock()
	targets, cached := b.cache.lookup(name)
	seen := b.lastID
	if !cached {
		targets = b.registry.snapshot()
	}
	b.mu.Unlock()

	path := metrics.PathScan
	if cached {
		path = metrics.PathCache
		b.log.Info("executing cached listeners", "event", name, "listeners", len(targets))
	} else {
		b.log.Info("looking for listeners", "event", name, "bindings", len(targets))
	}
	if b.metrics {
		defer metrics.ObserveFire(path, time.Now())
	}

	var (
		invoked int
		err     error
	)
	if cached {
		invoked, err = b.replay(name, evt, targets)
	} else {
		invoked, err = b.scan(name, evt, targets, seen)
	}
	if err != nil {
		return err
	}
	if invoked == 0 {
		b.log.Warn("no listeners found", "event", name)
		if b.metrics {
			metrics.NoListenersTotal.Inc()
		}
	}
	return nil
}

// replay delivers to a cached listener list.
func (b *Bus) replay(name string, evt *Event, targets []*binding) (int, error) {
	for i, bd := range targets {
		vetoed, err := b.invoke(name, evt, bd, metrics.PathCache)
		if err != nil || vetoed {
			return i + 1, err
		}
	}
	return len(targets), nil
}

// scan matches every binding in the snapshot against name and delivers to
// the ones that match. The listeners that returned without error are
// published to the cache when scan returns, even if a later one fails or
// panics.
func (b *Bus) scan(name string, evt *Event, snapshot []*binding, seen Handle) (int, error) {
	var found []*binding
	defer func() {
		if len(found) > 0 {
			b.publish(name, found, seen)
		}
	}()

	for _, bd := range snapshot {
		ok, err := bd.match(name)
		if err != nil {
			return len(found), err
		}
		if !ok {
			continue
		}

		vetoed, err := b.invoke(name, evt, bd, metrics.PathScan)
		if err != nil {
			// A failed listener is invoked but not remembered.
			return len(found) + 1, err
		}
		found = append(found, bd)
		if vetoed {
			break
		}
	}
	return len(found), nil
}

// invoke calls one listener and reports whether it vetoed.
func (b *Bus) invoke(name string, evt *Event, bd *binding, path string) (bool, error) {
	res, err := bd.listener.Notify(name, bd.pattern, evt)
	if b.metrics {
		metrics.RecordInvocation(err)
	}
	if err != nil {
		return false, &ListenerError{Event: name, Pattern: bd.pattern, Handle: bd.handle, Err: err}
	}
	if res == Veto {
		b.log.Warn("notifications vetoed", "event", name, "pattern", bd.pattern, "listener", bd.handle.String())
		if b.metrics {
			metrics.RecordVeto(path)
		}
		return true, nil
	}
	return false, nil
}

// publish stores the bindings a scan invoked as name's cache entry.
// Bindings unbound or flushed while the scan ran are left out. Bindings
// bound while it ran (handles above seen) missed the back-fill because the
// entry did not exist yet, so they are matched here instead.
func (b *Bus) publish(name string, found []*binding, seen Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, bd := range found {
		if b.registry.has(bd.handle) {
			b.cache.add(name, bd)
		}
	}
	if _, ok := b.cache.entries[name]; !ok {
		return
	}
	for _, bd := range b.registry.after(seen) {
		if ok, err := bd.match(name); err == nil && ok {
			b.cache.add(name, bd)
		}
	}
}

// Cached returns the handles remembered for name, in delivery order, and
// whether name has a cache entry at all.
func (b *Bus) Cached(name string) ([]Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.handles(name)
}

// Bindings lists every live binding in bind order.
func (b *Bus) Bindings() []Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.infos()
}

// Stats is a point-in-time size report.
type Stats struct {
	Bindings    int `json:"bindings"`
	CachedNames int `json:"cached_names"`
}

// Stats reports how many bindings and cached names the bus holds.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Bindings: b.registry.len(), CachedNames: b.cache.len()}
}
