package mirror

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPoolFull is returned by submit when every worker is busy and the
// backlog is at capacity.
var ErrPoolFull = errors.New("mirror: publish backlog is full")

// ErrPoolClosed is returned by submit after shutdown.
var ErrPoolClosed = errors.New("mirror: closed")

// pool runs publish tasks on a fixed set of goroutines so Redis round
// trips never run on the dispatching goroutine.
type pool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	onPanic func(v any)
}

func newPool(size int, onPanic func(v any)) *pool {
	if size <= 0 {
		size = 1
	}

	p := &pool{
		// Backlog of 2× the worker count absorbs short bursts.
		tasks:   make(chan func(), size*2),
		onPanic: onPanic,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// submit enqueues task without blocking.
func (p *pool) submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// shutdown stops accepting tasks and waits for queued ones to finish.
func (p *pool) shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run keeps a panicking task from killing its worker.
func (p *pool) run(task func()) {
	defer func() {
		if v := recover(); v != nil && p.onPanic != nil {
			p.onPanic(fmt.Sprint(v))
		}
	}()
	task()
}
