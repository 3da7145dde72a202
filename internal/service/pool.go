// Package service implements the streaming request pipeline: a worker pool
// dispatcher, a per-request stream coordinator, and the request handler
// that wires the two together.
package service

import (
	"sync/atomic"
	"time"

	"github.com/arjunmehta/fluxid"
	"github.com/arjunmehta/fluxid/internal/worker"
	"github.com/rs/zerolog"
)

// Pool holds the worker inboxes and dispatches Stream/Shutdown requests to
// them in strict round-robin.
type Pool struct {
	workers []*worker.Worker
	counter atomic.Uint64

	shuttingDown atomic.Bool
	cancelled    atomic.Bool
	inflight     atomic.Int64

	shutdownTimeout time.Duration
	log             zerolog.Logger
}

// NewPool builds a Pool over already-constructed workers. Callers are
// responsible for starting each worker's Run loop in its own goroutine.
func NewPool(workers []*worker.Worker, shutdownTimeout time.Duration, log zerolog.Logger) *Pool {
	return &Pool{
		workers:         workers,
		shutdownTimeout: shutdownTimeout,
		log:             log.With().Str("component", "pool").Logger(),
	}
}

// Dispatch sends req to the next worker in round-robin order. It fails
// with ServiceShutdown once the shutdown sequence has cancelled in-flight
// coordinators, or ChannelError if the target worker's inbox is closed.
// Note that RefuseNewWork alone does not fail Dispatch: a stream admitted
// before shutdown began keeps dispatching through the drain window.
func (p *Pool) Dispatch(req worker.WorkRequest) (err error) {
	if p.cancelled.Load() {
		return fluxid.NewServiceShutdownError()
	}
	idx := (p.counter.Add(1) - 1) % uint64(len(p.workers))
	defer func() {
		if r := recover(); r != nil {
			err = fluxid.NewChannelError("worker inbox closed")
		}
	}()
	p.workers[idx].Inbox <- req
	return nil
}

// BeginStream marks a stream as in-flight; callers must call EndStream
// when it completes.
func (p *Pool) BeginStream() { p.inflight.Add(1) }

// EndStream marks a stream as complete.
func (p *Pool) EndStream() { p.inflight.Add(-1) }

// Inflight reports the number of streams currently being served.
func (p *Pool) Inflight() int64 { return p.inflight.Load() }

// RefuseNewWork is phase 1 of shutdown: the handler stops admitting new
// client streams. Already-admitted streams keep running.
func (p *Pool) RefuseNewWork() { p.shuttingDown.Store(true) }

// IsShuttingDown reports whether RefuseNewWork has been called.
func (p *Pool) IsShuttingDown() bool { return p.shuttingDown.Load() }

// Cancel is phase 3 of shutdown: any coordinator still running after the
// drain window has its next Dispatch fail with ServiceShutdown.
func (p *Pool) Cancel() { p.cancelled.Store(true) }

// Shutdown runs the four-phase graceful shutdown: refuse new client
// streams, drain in-flight streams (polling every 100ms up to
// p.shutdownTimeout), cancel whatever is still running, then send every
// worker a Shutdown request with an independent 3-second ack timeout.
func (p *Pool) Shutdown() {
	p.RefuseNewWork()
	p.drain()
	p.Cancel()
	p.shutdownWorkers()
}

func (p *Pool) drain() {
	deadline := time.Now().Add(p.shutdownTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.Inflight() == 0 {
			return
		}
		if time.Now().After(deadline) {
			p.log.Warn().Int64("inflight", p.Inflight()).Msg("shutdown grace period elapsed with streams still in flight")
			return
		}
		<-ticker.C
	}
}

const workerShutdownAckTimeout = 3 * time.Second

func (p *Pool) shutdownWorkers() {
	acks := make([]chan struct{}, len(p.workers))
	for i, w := range p.workers {
		ack := make(chan struct{})
		acks[i] = ack
		w.Inbox <- worker.WorkRequest{Shutdown: &worker.ShutdownRequest{Ack: ack}}
	}
	for i, ack := range acks {
		select {
		case <-ack:
		case <-time.After(workerShutdownAckTimeout):
			p.log.Warn().Int("worker", i).Msg("worker did not ack shutdown within timeout")
		}
	}
}
