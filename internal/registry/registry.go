// Package registry implements WorkerRegistry (spec §3, §4.6): MainWorker's
// table of subscribed Processing Workers, their bearer tokens, TTL-based
// expiry, and round-robin selection for routing.
package registry

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dbtypes"
)

// DefaultTTL is the worker TTL used when none is configured (spec §4.6:
// "default >= 60s"). New accepts any positive TTL, including shorter ones.
const DefaultTTL = 60 * time.Second

type entry struct {
	record dbtypes.WorkerRecord
	token  string
}

// Registry is a process-local concurrent map of subscribed workers.
// Expiry is lazy (checked on lookup) plus swept periodically in the
// background (spec §5).
type Registry struct {
	ttl time.Duration

	mu      sync.Mutex
	workers map[string]*entry
	order   []string // insertion order, for round-robin
	next    int
}

// New constructs a Registry with the given TTL. ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{ttl: ttl, workers: make(map[string]*entry)}
}

// Subscribe records a new (or re-subscribing) worker as Available and
// issues it a fresh bearer token scoped to Process RPC only.
func (r *Registry) Subscribe(workerID, keyID, wrappedKeyFingerprint, address string) (token string, err error) {
	token, err = generateToken()
	if err != nil {
		return "", dberr.Wrap(dberr.Internal, "generate worker token", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[workerID]; !exists {
		r.order = append(r.order, workerID)
	}
	r.workers[workerID] = &entry{
		record: dbtypes.WorkerRecord{
			WorkerID:              workerID,
			Status:                dbtypes.WorkerAvailable,
			WrappedKeyFingerprint: wrappedKeyFingerprint,
			KeyID:                 keyID,
			LastSeen:              time.Now(),
			Address:               address,
		},
		token: token,
	}
	return token, nil
}

// Touch refreshes last_seen for workerID, e.g. on every RPC it services.
func (r *Registry) Touch(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.workers[workerID]; ok {
		e.record.LastSeen = time.Now()
		if e.record.Status == dbtypes.WorkerGone {
			e.record.Status = dbtypes.WorkerAvailable
		}
	}
}

// VerifyToken checks a bearer token against a non-Gone worker's current
// token, for use gating the RPC Process method (spec: worker tokens are
// RPC-only).
func (r *Registry) VerifyToken(token string) (workerID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, e := range r.workers {
		if r.expired(e, now) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(e.token), []byte(token)) == 1 {
			return id, true
		}
	}
	return "", false
}

// Address returns the RPC address a worker registered at Subscribe time.
func (r *Registry) Address(workerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.workers[workerID]
	if !ok {
		return "", false
	}
	return e.record.Address, true
}

// List returns a snapshot of all worker records, expiring stale ones
// lazily first.
func (r *Registry) List() []dbtypes.WorkerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	out := make([]dbtypes.WorkerRecord, 0, len(r.workers))
	for _, e := range r.workers {
		if r.expired(e, now) {
			e.record.Status = dbtypes.WorkerGone
		}
		out = append(out, e.record)
	}
	return out
}

// Next round-robins over Available workers, skipping TTL-expired ones.
// Returns false if no worker is Available.
func (r *Registry) Next() (workerID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return "", false
	}
	now := time.Now()
	for i := 0; i < len(r.order); i++ {
		idx := (r.next + i) % len(r.order)
		id := r.order[idx]
		e, exists := r.workers[id]
		if !exists || r.expired(e, now) {
			continue
		}
		if e.record.Status != dbtypes.WorkerAvailable {
			continue
		}
		r.next = (idx + 1) % len(r.order)
		return id, true
	}
	return "", false
}

// Sweep marks every worker not seen within the TTL as Gone. Intended to
// be called periodically by a background goroutine (spec §5: "background
// sweeper").
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, e := range r.workers {
		if r.expired(e, now) {
			e.record.Status = dbtypes.WorkerGone
		}
	}
}

func (r *Registry) expired(e *entry, now time.Time) bool {
	return now.Sub(e.record.LastSeen) > r.ttl
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
