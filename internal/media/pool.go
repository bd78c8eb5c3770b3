package media

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const deathGrace = 2 * time.Second

// Pool owns the fixed set of media workers and hands them out round-robin
// to new rooms. The pool never heals itself: when any worker dies the whole
// process is scheduled for termination after a short grace delay and an
// external supervisor is expected to restart it.
type Pool struct {
	mu      sync.Mutex
	workers []Worker
	next    int
	rooms   map[string]int // worker id -> rooms assigned, observability only

	// terminate is what a worker death escalates to. Tests swap it out;
	// production wires it to os.Exit.
	terminate func()
}

type PoolOption func(*Pool)

// WithTerminate overrides the process-level failure action.
func WithTerminate(fn func()) PoolOption {
	return func(p *Pool) { p.terminate = fn }
}

func NewPool(workers []Worker, opts ...PoolOption) *Pool {
	p := &Pool{
		workers: workers,
		rooms:   make(map[string]int, len(workers)),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, w := range workers {
		go p.watch(w)
	}
	return p
}

// Assign returns the next worker, wrapping the cursor modulo pool size.
// The cursor keeps cycling over a dead worker's slot; calls against it
// fail cleanly at the engine rather than being rerouted here.
func (p *Pool) Assign() (Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.workers) == 0 {
		return nil, ErrNoWorkersAvailable
	}
	w := p.workers[p.next]
	p.next++
	if p.next == len(p.workers) {
		p.next = 0
	}
	p.rooms[w.ID()]++
	return w, nil
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// RoomCount returns how many rooms were assigned to the given worker. The
// count is never decremented when a room is destroyed; rooms are cheap and
// assignment stays round-robin regardless of load.
func (p *Pool) RoomCount(workerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rooms[workerID]
}

func (p *Pool) watch(w Worker) {
	err, ok := <-w.Died()
	if !ok {
		return
	}
	log.Error().
		Str("module", "media.pool").
		Str("worker", w.ID()).
		Err(err).
		Dur("grace", deathGrace).
		Msg("media worker died, scheduling process termination")

	term := p.terminate
	if term == nil {
		return
	}
	time.AfterFunc(deathGrace, term)
}

// Close shuts down every worker. Used on graceful server shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()
	for _, w := range workers {
		if err := w.Close(); err != nil {
			log.Warn().Str("module", "media.pool").Str("worker", w.ID()).Err(err).Msg("worker close")
		}
	}
}
