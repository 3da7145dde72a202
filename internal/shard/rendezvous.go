// Package shard provides two independent pieces of the deployment-level
// sharding story: a rendezvous-hashing table that
// routes a client to a server replica, and a Redis-backed machine-id
// leasing coordinator for deployments that prefer dynamic assignment over
// a static shard_offset. Neither participates in the per-process worker
// round-robin of internal/service.Pool, which remains unconditionally
// normative.
package shard

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Table assigns a client key to one of a fixed set of server replicas
// using weighted rendezvous hashing, so that adding or removing a replica
// only reshuffles the keys that belong to it (unlike mod-N hashing, which
// reshuffles almost everything).
type Table struct {
	rdv     *rendezvous.Rendezvous
	replica []string
}

// NewTable builds a Table over replicas, all weighted equally. replicas
// must be non-empty and its order is preserved for Replicas().
func NewTable(replicas []string) *Table {
	cp := append([]string(nil), replicas...)
	return &Table{
		rdv:     rendezvous.New(cp, hashString),
		replica: cp,
	}
}

func hashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Assign returns the replica key should be routed to.
func (t *Table) Assign(key string) string {
	return t.rdv.Lookup(key)
}

// Replicas returns the configured replica set, in the order supplied to
// NewTable.
func (t *Table) Replicas() []string {
	return append([]string(nil), t.replica...)
}

// Add grows the table with a new replica. The hash ring is rebuilt from
// scratch, which reshuffles only the keys rendezvous hashing would assign
// to the new replica (every other key's relative scoring is unaffected).
func (t *Table) Add(replica string) {
	t.replica = append(t.replica, replica)
	t.rdv = rendezvous.New(t.replica, hashString)
}

// Remove shrinks the table, rebuilding the hash ring without replica.
func (t *Table) Remove(replica string) {
	kept := make([]string, 0, len(t.replica))
	for _, r := range t.replica {
		if r != replica {
			kept = append(kept, r)
		}
	}
	t.replica = kept
	t.rdv = rendezvous.New(kept, hashString)
}
