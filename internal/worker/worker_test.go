package worker

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/arjunmehta/fluxid"
	"github.com/rs/zerolog"
)

func newTestWorker(t *testing.T, idsPerChunk int) (*Worker, *fluxid.SingleSnowflakeGenerator) {
	t.Helper()
	clock := fluxid.NewFixedClock(1000)
	gen := fluxid.NewSingleSnowflakeGenerator(fluxid.LayoutDefault, 1, clock)
	w := New(gen, 8, idsPerChunk, zerolog.Nop())
	return w, gen
}

func TestWorkerStreamProducesExactCount(t *testing.T) {
	w, _ := newTestWorker(t, 4)
	chunkTx := make(chan Chunk, 10)
	done := make(chan struct{})

	req := &StreamRequest{ChunkSize: 10, ChunkTx: chunkTx, Done: done}
	w.serveStream(req)

	var total int
	for c := range chunkTx {
		if c.Err != nil {
			t.Fatalf("unexpected chunk error: %v", c.Err)
		}
		if len(c.PackedIDs)%8 != 0 {
			t.Fatalf("chunk length %d not a multiple of 8", len(c.PackedIDs))
		}
		total += len(c.PackedIDs) / 8
	}
	if total != 10 {
		t.Fatalf("produced %d ids, want 10", total)
	}
}

func TestWorkerStreamPacksLittleEndian(t *testing.T) {
	_, gen := newTestWorker(t, 1)
	first := gen.PollID()
	if !first.Ready {
		t.Fatalf("setup poll must be ready")
	}
	// Reset the generator so serveStream produces the same first id.
	w2, _ := newTestWorker(t, 1)
	chunkTx := make(chan Chunk, 2)
	done := make(chan struct{})
	w2.serveStream(&StreamRequest{ChunkSize: 1, ChunkTx: chunkTx, Done: done})

	c := <-chunkTx
	if len(c.PackedIDs) != 8 {
		t.Fatalf("packed chunk length = %d, want 8", len(c.PackedIDs))
	}
	got := binary.LittleEndian.Uint64(c.PackedIDs)
	if got != first.ID.ToRaw() {
		t.Fatalf("packed id = %d, want %d", got, first.ID.ToRaw())
	}
}

func TestWorkerAbandonsOnDoneClosed(t *testing.T) {
	w, _ := newTestWorker(t, 1)
	chunkTx := make(chan Chunk) // unbuffered, nobody ever receives
	done := make(chan struct{})
	close(done)

	finished := make(chan struct{})
	go func() {
		w.serveStream(&StreamRequest{ChunkSize: 1, ChunkTx: chunkTx, Done: done})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("serveStream did not return promptly after Done was closed")
	}
}

func TestWorkerShutdownAcksAndExits(t *testing.T) {
	w, _ := newTestWorker(t, 4)
	runDone := make(chan struct{})
	go func() {
		w.Run()
		close(runDone)
	}()

	ack := make(chan struct{})
	w.Inbox <- WorkRequest{Shutdown: &ShutdownRequest{Ack: ack}}
	<-ack
	<-runDone
}
