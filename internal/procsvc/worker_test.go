package procsvc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/deltadb/deltadb/internal/crypto"
	"github.com/deltadb/deltadb/internal/rpcproto"
)

// newTestWorker builds a Worker rooted at a fresh temp directory with a
// sealer installed directly, bypassing the network Subscribe handshake
// (exercised separately in internal/mainsvc's Subscribe tests).
func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	dir := t.TempDir()

	w, err := New(Config{
		WorkerID:     "w1",
		ListenAddr:   "127.0.0.1:0",
		SharedFSRoot: filepath.Join(dir, "db"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	sealer, err := crypto.NewSealer("key-test", key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	w.mu.Lock()
	w.sealer = sealer
	w.mu.Unlock()
	return w
}

func TestProcessPutThenGetRoundTrips(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	_, version, err := w.process(ctx, rpcproto.ProcessRequest{
		Database:  "orders",
		EntityKey: "order-1",
		Operation: rpcproto.OpPut,
		Payload:   []byte(`{"total":42}`),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}

	result, gotVersion, err := w.process(ctx, rpcproto.ProcessRequest{
		Database:  "orders",
		EntityKey: "order-1",
		Operation: rpcproto.OpGet,
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotVersion != 1 || string(result) != `{"total":42}` {
		t.Fatalf("get = (%s, %d), want ({\"total\":42}, 1)", result, gotVersion)
	}
}

func TestProcessGetMissingReturnsNotFound(t *testing.T) {
	w := newTestWorker(t)
	_, _, err := w.process(context.Background(), rpcproto.ProcessRequest{
		Database:  "orders",
		EntityKey: "no-such-key",
		Operation: rpcproto.OpGet,
	})
	if err == nil {
		t.Fatal("expected an error for a missing entity")
	}
}

func TestProcessPutIncrementsVersionOnOverwrite(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	req := rpcproto.ProcessRequest{
		Database:  "orders",
		EntityKey: "order-1",
		Operation: rpcproto.OpPut,
		Payload:   []byte(`{"total":1}`),
	}
	if _, v, err := w.process(ctx, req); err != nil || v != 1 {
		t.Fatalf("first put: v=%d err=%v", v, err)
	}

	req.Payload = []byte(`{"total":2}`)
	if _, v, err := w.process(ctx, req); err != nil || v != 2 {
		t.Fatalf("second put: v=%d err=%v", v, err)
	}
}

func TestProcessRejectsInvalidEntityKey(t *testing.T) {
	w := newTestWorker(t)
	_, _, err := w.process(context.Background(), rpcproto.ProcessRequest{
		Database:  "orders",
		EntityKey: "../escape",
		Operation: rpcproto.OpGet,
	})
	if err == nil {
		t.Fatal("expected path-escaping entity key to be rejected")
	}
}

func TestProcessBeforeSubscribeIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{
		WorkerID:     "w2",
		ListenAddr:   "127.0.0.1:0",
		SharedFSRoot: filepath.Join(dir, "db"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _, err = w.process(context.Background(), rpcproto.ProcessRequest{
		Database:  "orders",
		EntityKey: "order-1",
		Operation: rpcproto.OpGet,
	})
	if err == nil {
		t.Fatal("expected process to fail before Subscribe installs a sealer")
	}
}
