// Command fluxidserver runs the streaming ID generation service:
// a pool of per-machine-id worker goroutines behind a
// gRPC server-streaming RPC, with health, reflection, Prometheus metrics,
// and a four-phase graceful shutdown.
//
// Usage:
//
//	fluxidserver --num-workers 16 --server-addr :7070
//
// Every flag has a matching environment variable fallback; see
// internal/config for the full surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arjunmehta/fluxid"
	"github.com/arjunmehta/fluxid/internal/audit"
	"github.com/arjunmehta/fluxid/internal/config"
	"github.com/arjunmehta/fluxid/internal/rpc"
	"github.com/arjunmehta/fluxid/internal/service"
	"github.com/arjunmehta/fluxid/internal/shard"
	"github.com/arjunmehta/fluxid/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	args, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	layout := fluxid.LayoutDefault
	_, _, maxMachine, _ := layout.Shifts()

	cfg, err := config.Validate(args, maxMachine)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := newLogger()
	log.Info().
		Int("num_workers", cfg.NumWorkers).
		Uint64("shard_offset", cfg.ShardOffset).
		Str("server_addr", cfg.ServerAddr).
		Msg("starting fluxid server")

	machineIDs := assignMachineIDs(context.Background(), cfg, maxMachine, log)

	var auditLog *audit.Log
	if cfg.AuditDBPath != "" {
		auditLog, err = audit.Open(cfg.AuditDBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.AuditDBPath).Msg("failed to open audit log")
		}
		defer auditLog.Close()
		log.Info().Str("path", cfg.AuditDBPath).Msg("audit log enabled")
	}

	epoch := layout.Epoch
	if epoch.IsZero() {
		epoch = time.UnixMilli(layout.CustomEpochMs)
	}
	clock := fluxid.NewMonotonicClock(epoch)
	workers := make([]*worker.Worker, cfg.NumWorkers)
	widthBytes := layout.Width / 8
	for i := range workers {
		machineID := machineIDs[i]
		gen := fluxid.NewSingleSnowflakeGenerator(layout, machineID, clock)
		w := worker.New(gen, widthBytes, cfg.IDsPerChunk, log)
		if auditLog != nil {
			w = w.WithAudit(machineID, func(machineID uint64, firstRaw uint64, count int) {
				if err := auditLog.Record(time.Now(), machineID, int64(firstRaw), count); err != nil {
					log.Warn().Err(err).Msg("failed to record audit entry")
				}
			})
		}
		workers[i] = w
		go w.Run()
	}

	pool := service.NewPool(workers, cfg.ShutdownTimeout, log)
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	handler := service.NewHandler(pool, cfg.IDsPerChunk, cfg.MaxAllowedIDs, cfg.StreamBufferSize, metrics, log)

	grpcServer, healthSrv := rpc.NewGRPCServer(handler, log)

	lis, err := listen(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.ServerAddr).Msg("failed to bind listener")
	}

	go serveMetrics(cfg.MetricsAddr, reg, log)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Bool("uds", cfg.UDS).Msg("grpc server listening")
		serveErr <- grpcServer.Serve(lis)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("grpc server exited unexpectedly")
			os.Exit(1)
		}
		return
	}

	rpc.MarkNotServing(healthSrv)
	pool.Shutdown()
	grpcServer.GracefulStop()
	log.Info().Msg("shutdown complete")
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	hostname, _ := os.Hostname()
	return zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "fluxidserver").
		Str("host", hostname).
		Logger()
}

func listen(cfg *config.ServerConfig) (net.Listener, error) {
	if cfg.UDS {
		_ = os.Remove(cfg.ServerAddr)
		return net.Listen("unix", cfg.ServerAddr)
	}
	return net.Listen("tcp", cfg.ServerAddr)
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server error")
	}
}

// assignMachineIDs resolves the concrete machine-id each worker slot will
// own. When cfg.RedisLeaseAddr is set, each id is leased from a shared
// Redis-backed pool so that multiple processes can
// coordinate a disjoint assignment without an operator hand-partitioning
// shard_offset ranges; any lease failure (including Redis being entirely
// unreachable) falls back to the static shard_offset+index scheme, since
// leasing is a convenience layered on top of the normative static scheme,
// never a hard dependency of it.
func assignMachineIDs(ctx context.Context, cfg *config.ServerConfig, maxMachine uint64, log zerolog.Logger) []uint64 {
	static := make([]uint64, cfg.NumWorkers)
	for i := range static {
		static[i] = cfg.ShardOffset + uint64(i)
	}
	if cfg.RedisLeaseAddr == "" {
		return static
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisLeaseAddr})
	const ttl = 30 * time.Second
	// The candidate range is wider than num-workers so a restarted process
	// can skip ids still held by its predecessor's unexpired leases, but it
	// must never extend past the layout's machine-id field.
	leaseRange := uint64(cfg.NumWorkers) * 4
	if cfg.ShardOffset+leaseRange > maxMachine+1 {
		leaseRange = maxMachine + 1 - cfg.ShardOffset
	}
	leaser := shard.NewLeaser(rdb, "fluxid", cfg.ShardOffset, leaseRange, ttl)
	hostname, _ := os.Hostname()

	leased := make([]uint64, 0, cfg.NumWorkers)
	leases := make([]*shard.Lease, 0, cfg.NumWorkers)
	for i := 0; i < cfg.NumWorkers; i++ {
		lease, err := leaser.Acquire(ctx, fmt.Sprintf("%s-%d", hostname, i))
		if err != nil {
			log.Warn().Err(err).Msg("redis machine-id lease failed, falling back to static shard-offset")
			return static
		}
		leases = append(leases, lease)
		leased = append(leased, lease.MachineID)
	}

	go renewLeases(ctx, leaser, leases, hostname, ttl, log)
	log.Info().Interface("machine_ids", leased).Msg("leased machine-ids from redis")
	return leased
}

func renewLeases(ctx context.Context, leaser *shard.Leaser, leases []*shard.Lease, hostname string, ttl time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for range ticker.C {
		for i, lease := range leases {
			if err := leaser.Renew(ctx, lease, fmt.Sprintf("%s-%d", hostname, i)); err != nil {
				log.Warn().Err(err).Uint64("machine_id", lease.MachineID).Msg("failed to renew machine-id lease")
			}
		}
	}
}
