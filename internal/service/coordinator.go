package service

import (
	"github.com/arjunmehta/fluxid"
	"github.com/arjunmehta/fluxid/internal/worker"
)

// Coordinator drives a single client request to completion: it splits
// total IDs into ids_per_chunk-sized pieces, dispatches each to the pool
// in round-robin order, and forwards every packed chunk to the response
// channel.
type Coordinator struct {
	pool        *Pool
	idsPerChunk int
}

// NewCoordinator builds a Coordinator bound to pool.
func NewCoordinator(pool *Pool, idsPerChunk int) *Coordinator {
	return &Coordinator{pool: pool, idsPerChunk: idsPerChunk}
}

// Run streams totalIDs worth of packed ids to respTx, stopping early and
// returning an error if dispatch, generation, or forwarding fails. done is
// closed by the caller when the client disconnects.
func (c *Coordinator) Run(totalIDs uint64, respTx chan<- worker.Chunk, done <-chan struct{}) error {
	remaining := totalIDs
	for remaining > 0 {
		chunkSize := c.idsPerChunk
		if uint64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}
		remaining -= uint64(chunkSize)

		chunkTx := make(chan worker.Chunk, 2)
		req := worker.WorkRequest{Stream: &worker.StreamRequest{
			ChunkSize: chunkSize,
			ChunkTx:   chunkTx,
			Done:      done,
		}}
		if err := c.pool.Dispatch(req); err != nil {
			forward(respTx, worker.Chunk{Err: err}, done)
			return err
		}

	recv:
		for {
			select {
			case msg, ok := <-chunkTx:
				if !ok {
					break recv
				}
				if msg.Err != nil {
					forward(respTx, msg, done)
					return msg.Err
				}
				if !forward(respTx, msg, done) {
					return fluxid.NewRequestCancelledError()
				}
			case <-done:
				// Client disconnected; the worker abandons this request at
				// its next chunk boundary without closing chunkTx, so stop
				// receiving rather than wait for a closure that never comes.
				return fluxid.NewRequestCancelledError()
			}
		}
	}
	return nil
}

// forward sends c on respTx, racing against done so a disconnected client
// never blocks the coordinator forever. Returns false if done fired first.
func forward(respTx chan<- worker.Chunk, c worker.Chunk, done <-chan struct{}) bool {
	select {
	case respTx <- c:
		return true
	case <-done:
		return false
	}
}
