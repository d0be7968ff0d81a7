// Package rpcproto defines the wire messages and JSON codec for the
// deltadb.MainWorker RPC service (spec §4.7): exactly two methods,
// Subscribe and Process, carried as JSON over net/rpc with bytes fields
// base64-encoded and empty fields omitted.
package rpcproto

import "time"

// Operation is the Process RPC's operation selector (spec §4.5).
type Operation string

const (
	OpGet Operation = "GET"
	OpPut Operation = "PUT"
)

// SubscribeRequest is sent by a Processing Worker at startup. Address is
// the worker's own RPC listen address, not named by spec §3's
// WorkerRecord field list but required so MainWorker can route Process
// calls to this worker (see dbtypes.WorkerRecord.Address).
type SubscribeRequest struct {
	WorkerID  string `json:"worker_id,omitempty"`
	PublicKey []byte `json:"public_key,omitempty"` // PEM-encoded RSA public key
	Address   string `json:"address,omitempty"`
}

// SubscribeResponse carries the worker's bearer token and its wrapped
// copy of the master key.
type SubscribeResponse struct {
	Token      string `json:"token,omitempty"`
	WrappedKey []byte `json:"wrapped_key,omitempty"`
	KeyID      string `json:"key_id,omitempty"`
}

// ProcessRequest is the single RPC surface a Processing Worker exposes
// (spec §4.5).
type ProcessRequest struct {
	Database  string    `json:"database,omitempty"`
	EntityKey string    `json:"entity_key,omitempty"`
	SchemaID  string    `json:"schema_id,omitempty"`
	Operation Operation `json:"operation,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	Token     string    `json:"token,omitempty"`
	// DeadlineUnixNano carries the inbound request's deadline (spec §5),
	// propagated across the RPC boundary since net/rpc has no built-in
	// per-call deadline.
	DeadlineUnixNano int64 `json:"deadline_unix_nano,omitempty"`
}

// Deadline reconstructs the propagated deadline, or the zero Time if none
// was set.
func (p ProcessRequest) Deadline() time.Time {
	if p.DeadlineUnixNano == 0 {
		return time.Time{}
	}
	return time.Unix(0, p.DeadlineUnixNano)
}

// ProcessResponse is the reply to a Process RPC.
type ProcessResponse struct {
	Status  string `json:"status,omitempty"`
	Result  []byte `json:"result,omitempty"`
	Version int64  `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}
