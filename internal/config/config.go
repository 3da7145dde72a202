// Package config parses and validates the streaming server's CLI and
// environment surface into a ServerConfig.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CliArgs mirrors the raw flag/environment surface before validation.
type CliArgs struct {
	MaxAllowedIDs    uint64
	ShardOffset      uint64
	NumWorkers       int
	IDsPerChunk      int
	StreamBufferSize int
	ServerAddr       string
	UDS              bool
	ShutdownTimeout  time.Duration
	MetricsAddr      string
	AuditDBPath      string
	RedisLeaseAddr   string
}

// ServerConfig is the validated, immutable configuration the rest of the
// service is built against.
type ServerConfig struct {
	MaxAllowedIDs    uint64
	ShardOffset      uint64
	NumWorkers       int
	IDsPerChunk      int
	StreamBufferSize int
	ServerAddr       string
	UDS              bool
	ShutdownTimeout  time.Duration
	MetricsAddr      string
	AuditDBPath      string
	RedisLeaseAddr   string
}

const (
	defaultMaxAllowedIDs    = 100_000
	defaultShardOffset      = 0
	defaultNumWorkers       = 4
	defaultIDsPerChunk      = 256
	defaultStreamBufferSize = 8
	defaultServerAddr       = ":7070"
	defaultShutdownTimeout  = 10 * time.Second
	defaultMetricsAddr      = ":9090"
)

// Parse builds CliArgs from command-line flags, falling back to the
// environment variables documented alongside each flag, then to the
// package defaults. Flag values take precedence over the environment when
// both are supplied.
func Parse(fs *flag.FlagSet, args []string) (CliArgs, error) {
	a := CliArgs{}

	fs.Uint64Var(&a.MaxAllowedIDs, "max-allowed-ids", envUint64("MAX_ALLOWED_IDS", defaultMaxAllowedIDs), "reject requests for more than this many ids")
	fs.Uint64Var(&a.ShardOffset, "shard-offset", envUint64("SHARD_OFFSET", defaultShardOffset), "first machine-id for worker 0")
	fs.IntVar(&a.NumWorkers, "num-workers", envInt("NUM_WORKERS", defaultNumWorkers), "worker pool size")
	fs.IntVar(&a.IDsPerChunk, "ids-per-chunk", envInt("IDS_PER_CHUNK", defaultIDsPerChunk), "ids per emitted chunk")
	fs.IntVar(&a.StreamBufferSize, "stream-buffer-size", envInt("STREAM_BUFFER_SIZE", defaultStreamBufferSize), "response channel capacity in chunks")
	fs.StringVar(&a.ServerAddr, "server-addr", envString("SERVER_ADDR", defaultServerAddr), "tcp address or local-socket path")
	fs.BoolVar(&a.UDS, "uds", false, "interpret server-addr as a local socket path")
	fs.DurationVar(&a.ShutdownTimeout, "shutdown-timeout", envDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout), "grace period for in-flight drain")
	fs.StringVar(&a.MetricsAddr, "metrics-addr", envString("METRICS_ADDR", defaultMetricsAddr), "http address serving /metrics")
	fs.StringVar(&a.AuditDBPath, "audit-db", envString("AUDIT_DB", ""), "optional sqlite3 path for the append-only chunk audit log; empty disables it")
	fs.StringVar(&a.RedisLeaseAddr, "redis-lease-addr", envString("REDIS_LEASE_ADDR", ""), "optional redis address for dynamic shard-offset leasing; empty keeps the static shard-offset")

	if err := fs.Parse(args); err != nil {
		return CliArgs{}, err
	}
	return a, nil
}

// Validate converts CliArgs into a ServerConfig, rejecting combinations
// that would leave the service unable to start safely.
func Validate(a CliArgs, maxMachineID uint64) (*ServerConfig, error) {
	if a.NumWorkers < 1 {
		return nil, &ValidationError{Field: "num-workers", Value: a.NumWorkers, Reason: "must be >= 1"}
	}
	if uint64(a.NumWorkers) > maxMachineID+1 {
		return nil, &ValidationError{Field: "num-workers", Value: a.NumWorkers, Reason: fmt.Sprintf("must be <= %d (max_machine_id + 1)", maxMachineID+1)}
	}
	if a.IDsPerChunk < 1 {
		return nil, &ValidationError{Field: "ids-per-chunk", Value: a.IDsPerChunk, Reason: "must be >= 1"}
	}
	if a.StreamBufferSize < 1 {
		return nil, &ValidationError{Field: "stream-buffer-size", Value: a.StreamBufferSize, Reason: "must be >= 1"}
	}
	if a.MaxAllowedIDs == 0 {
		return nil, &ValidationError{Field: "max-allowed-ids", Value: a.MaxAllowedIDs, Reason: "must be > 0"}
	}
	if a.ServerAddr == "" {
		return nil, &ValidationError{Field: "server-addr", Value: a.ServerAddr, Reason: "must not be empty"}
	}
	if a.ShardOffset+uint64(a.NumWorkers)-1 > maxMachineID {
		return nil, &ValidationError{Field: "shard-offset", Value: a.ShardOffset, Reason: fmt.Sprintf("shard-offset + num-workers - 1 exceeds max machine id %d", maxMachineID)}
	}
	return &ServerConfig{
		MaxAllowedIDs:    a.MaxAllowedIDs,
		ShardOffset:      a.ShardOffset,
		NumWorkers:       a.NumWorkers,
		IDsPerChunk:      a.IDsPerChunk,
		StreamBufferSize: a.StreamBufferSize,
		ServerAddr:       a.ServerAddr,
		UDS:              a.UDS,
		ShutdownTimeout:  a.ShutdownTimeout,
		MetricsAddr:      a.MetricsAddr,
		AuditDBPath:      a.AuditDBPath,
		RedisLeaseAddr:   a.RedisLeaseAddr,
	}, nil
}

// ValidationError reports a rejected configuration field.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func envUint64(name string, def uint64) uint64 {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envInt(name string, def int) int {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(name string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(name); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
