// Package dbtypes holds the data-model types shared across the
// DeltaDatabase components: entity metadata, RBAC records, and the
// worker-subscription record.
package dbtypes

import "time"

// EntityMetadata is the plaintext metadata persisted alongside an
// entity's ciphertext blob (spec §3). Field names are stable on the wire
// and on disk.
type EntityMetadata struct {
	KeyID      string    `json:"key_id"`
	Alg        string    `json:"alg"`
	IV         string    `json:"iv"`
	Tag        string    `json:"tag"`
	SchemaID   string    `json:"schema_id,omitempty"`
	Version    int64     `json:"version"`
	WriterID   string    `json:"writer_id"`
	Timestamp  time.Time `json:"timestamp"`
	Database   string    `json:"database"`
	EntityKey  string    `json:"entity_key"`
}

// AlgAESGCM is the only algorithm identifier spec §3 permits.
const AlgAESGCM = "AES-GCM"

// Permission is one of the RBAC scopes an AuthKey or SessionToken carries.
type Permission string

const (
	PermRead  Permission = "read"
	PermWrite Permission = "write"
	PermAdmin Permission = "admin"
)

// Permissions is a small set of Permission values with membership tests.
type Permissions []Permission

func (p Permissions) Has(perm Permission) bool {
	for _, have := range p {
		if have == perm {
			return true
		}
	}
	return false
}

// AuthKey is a persistent RBAC credential (spec §3). It carries no
// secret: the plaintext secret is returned separately, once, by
// auth.Store.Create, and the persisted record stores only a bcrypt hash
// of it (see internal/auth).
type AuthKey struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
}

// Expired reports whether the key is past its expiry, if it has one.
func (k AuthKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// SessionToken is a short-lived bearer token issued by /api/login.
type SessionToken struct {
	Token       string      `json:"token"`
	Permissions Permissions `json:"permissions"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// WorkerStatus is the lifecycle state of a subscribed Processing Worker.
type WorkerStatus string

const (
	WorkerAvailable WorkerStatus = "Available"
	WorkerDegraded  WorkerStatus = "Degraded"
	WorkerGone      WorkerStatus = "Gone"
)

// WorkerRecord is MainWorker's bookkeeping entry for a subscribed
// Processing Worker (spec §3). Address is not named by the spec's field
// list but is necessary plumbing: MainWorker must know where to forward
// Process RPCs for a worker it is routing to.
type WorkerRecord struct {
	WorkerID              string       `json:"worker_id"`
	Status                WorkerStatus `json:"status"`
	WrappedKeyFingerprint string       `json:"wrapped_key_fingerprint"`
	KeyID                 string       `json:"key_id"`
	LastSeen              time.Time    `json:"last_seen"`
	Address               string       `json:"-"`
}
