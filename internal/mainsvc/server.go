// Package mainsvc implements the Main Worker (spec §4.6): the REST +
// RPC front-tier that authenticates clients, enforces the permission
// gate, and routes /entity/* traffic to a Processing Worker chosen from
// the WorkerRegistry. Adapted from the teacher's pkg/manager/manager.go
// composition-root idiom (store + tokenManager + secretsManager-style
// fields), with the Raft/cluster-membership machinery replaced by the
// single-process WorkerRegistry this spec calls for.
package mainsvc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/rpc"
	"sync"
	"time"

	"github.com/deltadb/deltadb/internal/auth"
	"github.com/deltadb/deltadb/internal/crypto"
	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dbtypes"
	"github.com/deltadb/deltadb/internal/registry"
	"github.com/deltadb/deltadb/internal/rpcproto"
	"github.com/deltadb/deltadb/internal/schema"
)

// Config configures a Main Worker.
type Config struct {
	RESTAddr        string
	RPCAddr         string
	WorkerTTL       time.Duration
	AdminSecret     string
	SessionTTL      time.Duration
	AuthDBPath      string
	SchemaDir       string
	BodyLimit       int64          // bytes; spec §4.6 default 1 MiB
	RequestDeadline time.Duration  // spec §5 default 10s
	InitialKeys     []BootstrapKey // seeded into the AuthStore at startup, from an optional config file
}

// Server is the Main Worker composition root: the auth store, the
// worker registry, the schema registry, a pool of dialed RPC clients to
// subscribed Processing Workers, and the master key material it hands
// out at Subscribe time.
type Server struct {
	cfg Config

	auth     *auth.Store
	registry *registry.Registry
	schemas  *schema.Registry

	keyID string
	key   []byte // master symmetric key; never logged, never persisted in the clear

	clientsMu sync.Mutex
	clients   map[string]*rpc.Client // workerID -> dialed Process client
}

// New constructs a Server, opening its AuthStore and SchemaRegistry and
// drawing a fresh master key for this deployment's key_id.
func New(cfg Config) (*Server, error) {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 1 << 20
	}
	if cfg.RequestDeadline <= 0 {
		cfg.RequestDeadline = 10 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}

	authStore, err := auth.Open(cfg.AuthDBPath, cfg.AdminSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("open auth store: %w", err)
	}
	schemas, err := schema.New(cfg.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("open schema registry: %w", err)
	}

	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("draw master key: %w", err)
	}
	keyID := "key-" + randomSuffix()

	srv := &Server{
		cfg:      cfg,
		auth:     authStore,
		registry: registry.New(cfg.WorkerTTL),
		schemas:  schemas,
		keyID:    keyID,
		key:      key,
		clients:  make(map[string]*rpc.Client),
	}

	if errs := srv.seedBootstrapKeys(cfg.InitialKeys); len(errs) > 0 {
		return nil, fmt.Errorf("seed bootstrap keys: %w", errs[0])
	}
	return srv, nil
}

// Close releases the Server's resources: the auth store and any dialed
// Processing Worker RPC connections.
func (s *Server) Close() error {
	s.clientsMu.Lock()
	for id, c := range s.clients {
		c.Close()
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()
	return s.auth.Close()
}

func randomSuffix() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// clientFor returns a cached RPC client dialed to workerID's own RPC
// listener, dialing fresh if none is cached. A cached client is returned
// without a liveness check; forward drops it via dropClient after a
// failed call.
func (s *Server) clientFor(workerID string) (*rpc.Client, error) {
	addr, ok := s.registry.Address(workerID)
	if !ok {
		return nil, dberr.New(dberr.ServiceUnavailable, "worker address unknown")
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if c, ok := s.clients[workerID]; ok {
		return c, nil
	}

	conn, err := dialRPC(addr)
	if err != nil {
		return nil, dberr.Wrap(dberr.ServiceUnavailable, "dial worker", err)
	}
	client := rpc.NewClientWithCodec(rpcproto.NewClientCodec(conn))
	s.clients[workerID] = client
	return client, nil
}

// dropClient evicts a cached client after a dial/call failure so the
// next request redials rather than reusing a dead connection.
func (s *Server) dropClient(workerID string) {
	s.clientsMu.Lock()
	if c, ok := s.clients[workerID]; ok {
		c.Close()
		delete(s.clients, workerID)
	}
	s.clientsMu.Unlock()
}

// List satisfies metrics.WorkerLister, exposing the registry snapshot
// for the periodic gauge collector without exporting the registry
// itself.
func (s *Server) List() []dbtypes.WorkerRecord {
	return s.registry.List()
}

// RunRegistrySweeper runs the WorkerRegistry's background TTL sweep
// until ctx is canceled (spec §5: "background sweeper").
func (s *Server) RunRegistrySweeper(ctx context.Context, interval time.Duration) {
	s.registry.RunSweeper(ctx, interval)
}
