package mainsvc

import (
	"path/filepath"
	"testing"
	"time"
)

// newTestServer builds a Server rooted at a fresh temp directory, with the
// given admin secret installed as the boot key.
func newTestServer(t *testing.T, adminSecret string) *Server {
	t.Helper()
	dir := t.TempDir()

	srv, err := New(Config{
		RESTAddr:        "127.0.0.1:0",
		RPCAddr:         "127.0.0.1:0",
		WorkerTTL:       time.Minute,
		AdminSecret:     adminSecret,
		SessionTTL:      time.Hour,
		AuthDBPath:      filepath.Join(dir, "auth.db"),
		SchemaDir:       filepath.Join(dir, "templates"),
		BodyLimit:       1 << 20,
		RequestDeadline: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}
