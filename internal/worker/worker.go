// Package worker implements the per-machine-id generation task: it owns a
// single generator and turns Stream requests into little-endian packed ID
// chunks.
package worker

import (
	"encoding/binary"
	"runtime"
	"time"

	"github.com/arjunmehta/fluxid"
	"github.com/rs/zerolog"
)

// Generator is the minimal surface a worker needs from a Snowflake
// generator. All three concurrency variants (single-owner, lock-based,
// lock-free) satisfy it.
type Generator interface {
	PollID() fluxid.Status[fluxid.SnowflakeID]
}

// Chunk is a packed batch of IDs forwarded from a worker to its
// coordinator, or a terminal error in place of a batch.
type Chunk struct {
	PackedIDs []byte
	Err       error
}

// StreamRequest asks a worker to produce chunkSize IDs, packing them
// ids_per_chunk at a time and sending each packed chunk on ChunkTx. Done is
// closed by the transport when the client disconnects (the coordinator
// passes it through unchanged), letting the
// worker abandon in-flight work at the next chunk boundary.
type StreamRequest struct {
	ChunkSize int
	ChunkTx   chan<- Chunk
	Done      <-chan struct{}
}

// ShutdownRequest asks a worker to terminate its loop, signaling Ack once
// it has done so.
type ShutdownRequest struct {
	Ack chan<- struct{}
}

// WorkRequest is the worker inbox's single message type: exactly one of
// Stream or Shutdown is set.
type WorkRequest struct {
	Stream   *StreamRequest
	Shutdown *ShutdownRequest
}

// AuditFunc records one served chunk: machineID, the first raw id packed
// into it, and how many ids it contains. Wired to internal/audit.Log.Record
// when the optional audit log is enabled; nil disables auditing entirely.
type AuditFunc func(machineID uint64, firstRaw uint64, count int)

// Worker owns one generator and a fixed-capacity inbox. Width is the raw
// ID's bit width in bytes (W/8), used to size the reusable pack buffer.
type Worker struct {
	Inbox chan WorkRequest

	gen       Generator
	machineID uint64
	widthByte int
	idsPerBuf int
	log       zerolog.Logger
	audit     AuditFunc

	buf      []byte
	cursor   int
	firstRaw uint64
}

// New builds a Worker with an inbox of capacity 1 (one in-flight request).
// idsPerChunk sizes the reusable pack buffer (idsPerChunk * widthBytes).
func New(gen Generator, widthBytes, idsPerChunk int, log zerolog.Logger) *Worker {
	return &Worker{
		Inbox:     make(chan WorkRequest, 1),
		gen:       gen,
		widthByte: widthBytes,
		idsPerBuf: idsPerChunk,
		log:       log.With().Str("component", "worker").Logger(),
		buf:       make([]byte, idsPerChunk*widthBytes),
	}
}

// WithAudit attaches fn as the worker's audit hook, called once per
// flushed chunk. Passing nil disables auditing.
func (w *Worker) WithAudit(machineID uint64, fn AuditFunc) *Worker {
	w.machineID = machineID
	w.audit = fn
	return w
}

// Run is the worker's main loop; it blocks until a Shutdown request is
// received.
func (w *Worker) Run() {
	for req := range w.Inbox {
		switch {
		case req.Stream != nil:
			w.serveStream(req.Stream)
		case req.Shutdown != nil:
			close(req.Shutdown.Ack)
			return
		}
	}
}

func (w *Worker) serveStream(req *StreamRequest) {
	w.cursor = 0
	for i := 0; i < req.ChunkSize; i++ {
		id, err := w.nextID(req.Done)
		if err != nil {
			if w.sendChunk(req, Chunk{Err: err}) {
				close(req.ChunkTx)
			}
			return
		}
		if id == nil {
			// Done was closed mid-yield: abandon silently.
			return
		}
		if w.cursor == 0 {
			w.firstRaw = id.ToRaw()
		}
		binary.LittleEndian.PutUint64(w.buf[w.cursor:], id.ToRaw())
		w.cursor += w.widthByte
		if w.cursor == len(w.buf) {
			if !w.flush(req) {
				return
			}
		}
	}
	if w.cursor > 0 {
		w.flush(req)
	}
	close(req.ChunkTx)
}

// nextID polls the generator until Ready, an error surfaces, or Done is
// closed. A nil, nil return means Done closed before an ID was produced.
func (w *Worker) nextID(done <-chan struct{}) (*fluxid.SnowflakeID, error) {
	for {
		st := w.gen.PollID()
		if st.Ready {
			id := st.ID
			return &id, nil
		}
		select {
		case <-done:
			return nil, nil
		default:
		}
		if st.YieldFor > 0 {
			time.Sleep(time.Duration(st.YieldFor) * time.Millisecond)
			continue
		}
		// YieldFor == 0: a lost CAS race under the lock-free variant, retry
		// immediately after yielding to the scheduler.
		runtime.Gosched()
	}
}

func (w *Worker) flush(req *StreamRequest) bool {
	out := make([]byte, w.cursor)
	copy(out, w.buf[:w.cursor])
	count := w.cursor / w.widthByte
	firstRaw := w.firstRaw
	w.cursor = 0
	if !w.sendChunk(req, Chunk{PackedIDs: out}) {
		return false
	}
	if w.audit != nil {
		w.audit(w.machineID, firstRaw, count)
	}
	return true
}

// sendChunk sends c on req.ChunkTx, racing against req.Done so a
// disconnected client doesn't block the worker forever. Returns false if
// the request was abandoned.
func (w *Worker) sendChunk(req *StreamRequest, c Chunk) bool {
	select {
	case req.ChunkTx <- c:
		return true
	case <-req.Done:
		w.log.Debug().Msg("abandoning in-flight chunk: client disconnected")
		return false
	}
}
