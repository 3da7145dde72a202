package service

import (
	"time"

	"github.com/arjunmehta/fluxid"
	"github.com/arjunmehta/fluxid/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Metrics bundles the service-layer Prometheus instruments.
// The engine's own atomic.Int64 counters remain untouched inside
// the generator; these are the network-facing counterparts.
type Metrics struct {
	RequestsTotal   prometheus.Counter
	RequestSize     prometheus.Histogram
	StreamsInflight prometheus.Gauge
	StreamDuration  prometheus.Histogram
}

// NewMetrics registers the handler's instruments against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fluxid_requests_total",
			Help: "Total number of StreamIds requests received.",
		}),
		RequestSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fluxid_request_size_ids",
			Help:    "Requested id count per StreamIds call.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		StreamsInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fluxid_streams_inflight",
			Help: "Number of StreamIds calls currently being served.",
		}),
		StreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fluxid_stream_duration_seconds",
			Help:    "Wall-clock duration of a StreamIds call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestSize, m.StreamsInflight, m.StreamDuration)
	return m
}

// Handler validates and admits streaming requests,
// independent of any particular transport.
type Handler struct {
	pool         *Pool
	idsPerChunk  int
	maxAllowed   uint64
	bufferChunks int
	metrics      *Metrics
	log          zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(pool *Pool, idsPerChunk int, maxAllowedIDs uint64, streamBufferSize int, metrics *Metrics, log zerolog.Logger) *Handler {
	return &Handler{
		pool:         pool,
		idsPerChunk:  idsPerChunk,
		maxAllowed:   maxAllowedIDs,
		bufferChunks: streamBufferSize,
		metrics:      metrics,
		log:          log.With().Str("component", "handler").Logger(),
	}
}

// StreamIds validates count, then spawns a coordinator that streams
// packed id chunks into the returned channel. done must be closed by the
// caller on client disconnect; the returned channel is closed when the
// stream completes (successfully or with an error delivered as the final
// Chunk.Err).
func (h *Handler) StreamIds(count uint64, done <-chan struct{}) (<-chan worker.Chunk, error) {
	if count == 0 {
		return nil, fluxid.NewInvalidRequestError("count must be > 0")
	}
	if count > h.maxAllowed {
		return nil, fluxid.NewInvalidRequestError("count exceeds maximum")
	}
	if h.pool.IsShuttingDown() {
		return nil, fluxid.NewServiceShutdownError()
	}

	h.metrics.RequestsTotal.Inc()
	h.metrics.RequestSize.Observe(float64(count))
	h.pool.BeginStream()
	h.metrics.StreamsInflight.Inc()

	respTx := make(chan worker.Chunk, h.bufferChunks)
	coord := NewCoordinator(h.pool, h.idsPerChunk)

	go func() {
		start := time.Now()
		defer func() {
			h.pool.EndStream()
			h.metrics.StreamsInflight.Dec()
			h.metrics.StreamDuration.Observe(time.Since(start).Seconds())
			close(respTx)
		}()
		if err := coord.Run(count, respTx, done); err != nil {
			h.log.Debug().Err(err).Msg("stream ended with error")
		}
	}()

	return respTx, nil
}
