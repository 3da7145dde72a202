package service

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/arjunmehta/fluxid"
	"github.com/arjunmehta/fluxid/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func newTestPool(t *testing.T, n int) (*Pool, []*worker.Worker) {
	t.Helper()
	clock := fluxid.NewFixedClock(1000)
	workers := make([]*worker.Worker, n)
	for i := range workers {
		gen := fluxid.NewSingleSnowflakeGenerator(fluxid.LayoutDefault, uint64(i), clock)
		workers[i] = worker.New(gen, 8, 16, zerolog.Nop())
		go workers[i].Run()
	}
	pool := NewPool(workers, time.Second, zerolog.Nop())
	return pool, workers
}

func TestPoolDispatchRoundRobins(t *testing.T) {
	pool, workers := newTestPool(t, 2)
	for range workers {
		ack := make(chan struct{})
		if err := pool.Dispatch(worker.WorkRequest{Shutdown: &worker.ShutdownRequest{Ack: ack}}); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		<-ack
	}
}

func TestPoolDispatchRefusesAfterCancel(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	pool.Cancel()
	err := pool.Dispatch(worker.WorkRequest{})
	if err == nil {
		t.Fatalf("expected ServiceShutdown error after Cancel")
	}
	re, ok := fluxid.AsRequestError(err)
	if !ok || re.Kind != fluxid.KindServiceShutdown {
		t.Fatalf("expected KindServiceShutdown, got %v", err)
	}
}

func TestPoolDispatchStillServesDuringDrain(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	pool.RefuseNewWork()
	// An already-admitted stream keeps dispatching until Cancel.
	chunkTx := make(chan worker.Chunk, 2)
	req := worker.WorkRequest{Stream: &worker.StreamRequest{ChunkSize: 3, ChunkTx: chunkTx}}
	if err := pool.Dispatch(req); err != nil {
		t.Fatalf("Dispatch() during drain error = %v", err)
	}
	var total int
	for c := range chunkTx {
		total += len(c.PackedIDs) / 8
	}
	if total != 3 {
		t.Fatalf("produced %d ids, want 3", total)
	}
}

func newTestHandler(t *testing.T, n, idsPerChunk int) *Handler {
	t.Helper()
	pool, _ := newTestPool(t, n)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	return NewHandler(pool, idsPerChunk, 10_000, 8, metrics, zerolog.Nop())
}

func TestHandlerStreamIdsRejectsZeroCount(t *testing.T) {
	h := newTestHandler(t, 2, 4)
	_, err := h.StreamIds(0, nil)
	if err == nil {
		t.Fatalf("expected InvalidRequest for count=0")
	}
}

func TestHandlerStreamIdsRejectsOverMax(t *testing.T) {
	h := newTestHandler(t, 2, 4)
	_, err := h.StreamIds(1_000_000, nil)
	if err == nil {
		t.Fatalf("expected InvalidRequest for count exceeding max")
	}
}

func TestHandlerStreamIdsProducesExactCount(t *testing.T) {
	h := newTestHandler(t, 2, 4)
	done := make(chan struct{})
	ch, err := h.StreamIds(17, done)
	if err != nil {
		t.Fatalf("StreamIds() error = %v", err)
	}
	var total int
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("unexpected chunk error: %v", c.Err)
		}
		total += len(c.PackedIDs) / 8
	}
	if total != 17 {
		t.Fatalf("produced %d ids, want 17", total)
	}
}

func TestHandlerStreamIdsRefusesDuringShutdown(t *testing.T) {
	h := newTestHandler(t, 2, 4)
	h.pool.RefuseNewWork()
	_, err := h.StreamIds(5, nil)
	if err == nil {
		t.Fatalf("expected ServiceShutdown once the pool is refusing work")
	}
}

func TestHandlerStreamIdsSingleID(t *testing.T) {
	h := newTestHandler(t, 1, 4)
	done := make(chan struct{})
	ch, err := h.StreamIds(1, done)
	if err != nil {
		t.Fatalf("StreamIds() error = %v", err)
	}
	var chunks [][]byte
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("unexpected chunk error: %v", c.Err)
		}
		chunks = append(chunks, c.PackedIDs)
	}
	if len(chunks) != 1 || len(chunks[0]) != 8 {
		t.Fatalf("expected one 8-byte chunk, got %d chunks", len(chunks))
	}
	id := fluxid.SnowflakeIDFromRaw(fluxid.LayoutDefault, binary.LittleEndian.Uint64(chunks[0]))
	if id.MachineID() != 0 {
		t.Fatalf("MachineID() = %d, want 0 (worker 0)", id.MachineID())
	}
	if id.Sequence() != 0 {
		t.Fatalf("Sequence() = %d, want 0 on a fresh generator", id.Sequence())
	}
}

func TestHandlerStreamIdsRoundRobinChunkOrder(t *testing.T) {
	h := newTestHandler(t, 2, 4)
	done := make(chan struct{})
	ch, err := h.StreamIds(16, done)
	if err != nil {
		t.Fatalf("StreamIds() error = %v", err)
	}
	var machines []uint64
	var seen = make(map[uint64]bool)
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("unexpected chunk error: %v", c.Err)
		}
		first := fluxid.SnowflakeIDFromRaw(fluxid.LayoutDefault, binary.LittleEndian.Uint64(c.PackedIDs))
		machines = append(machines, first.MachineID())
		for off := 0; off < len(c.PackedIDs); off += 8 {
			raw := binary.LittleEndian.Uint64(c.PackedIDs[off:])
			if seen[raw] {
				t.Fatalf("duplicate id %d across chunks", raw)
			}
			seen[raw] = true
		}
	}
	if len(machines) != 4 {
		t.Fatalf("got %d chunks, want 4", len(machines))
	}
	for i, m := range machines {
		if m != uint64(i%2) {
			t.Fatalf("chunk %d served by machine %d, want %d (strict round-robin from worker 0)", i, m, i%2)
		}
	}
	if len(seen) != 16 {
		t.Fatalf("decoded %d distinct ids, want 16", len(seen))
	}
}

func TestHandlerStreamIdsCancelReleasesInflight(t *testing.T) {
	pool, _ := newTestPool(t, 2)
	reg := prometheus.NewRegistry()
	h := NewHandler(pool, 4, 10_000_000, 1, NewMetrics(reg), zerolog.Nop())

	done := make(chan struct{})
	ch, err := h.StreamIds(1_000_000, done)
	if err != nil {
		t.Fatalf("StreamIds() error = %v", err)
	}
	// Consume a few chunks, then disconnect.
	for i := 0; i < 3; i++ {
		if c := <-ch; c.Err != nil {
			t.Fatalf("unexpected chunk error: %v", c.Err)
		}
	}
	close(done)
	// Drain whatever was already buffered; the channel must close.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				goto closed
			}
		case <-deadline:
			t.Fatalf("response channel did not close after client disconnect")
		}
	}
closed:
	for i := 0; i < 50; i++ {
		if pool.Inflight() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Inflight() = %d, want 0 after cancellation", pool.Inflight())
}

func TestPoolShutdownCompletesAndRefuses(t *testing.T) {
	pool, _ := newTestPool(t, 3)
	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Shutdown() did not complete with an idle pool")
	}
	if !pool.IsShuttingDown() {
		t.Fatalf("IsShuttingDown() = false after Shutdown()")
	}
	if err := pool.Dispatch(worker.WorkRequest{}); err == nil {
		t.Fatalf("expected Dispatch to fail after Shutdown()")
	}
}
