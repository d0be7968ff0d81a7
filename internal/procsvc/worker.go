// Package procsvc implements the Processing Worker (spec §4.5): owns
// FileStore, Crypto, LRUCache and SchemaRegistry; serves Process(GET|PUT)
// RPCs; subscribes to a Main Worker at startup to obtain its wrapped
// master key. Adapted from the teacher's pkg/worker/worker.go skeleton
// (Config/NewWorker/Start/heartbeat loop), with container-execution
// fields (runtime, dnsHandler, portPublisher, volumesHandler) dropped as
// out of domain.
package procsvc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net"
	"net/rpc"
	"path/filepath"
	"sync"
	"time"

	"github.com/deltadb/deltadb/internal/cache"
	"github.com/deltadb/deltadb/internal/crypto"
	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dbtypes"
	"github.com/deltadb/deltadb/internal/dlog"
	"github.com/deltadb/deltadb/internal/filestore"
	"github.com/deltadb/deltadb/internal/metrics"
	"github.com/deltadb/deltadb/internal/rpcproto"
	"github.com/deltadb/deltadb/internal/schema"
)

// Config configures a Processing Worker.
type Config struct {
	WorkerID      string
	MainAddr      string // MainWorker RPC address, for Subscribe
	ListenAddr    string // this worker's own RPC address, for Process
	SharedFSRoot  string // <shared-fs-root>/db
	CacheCapacity int
}

// Worker is a single Processing Worker process.
type Worker struct {
	cfg     Config
	store   *filestore.Store
	schemas *schema.Registry
	cache   *cache.Cache

	mu     sync.RWMutex
	sealer *crypto.Sealer
	priv   *rsa.PrivateKey
	token  string
}

// New constructs a Worker and its on-disk stores, rooted at
// cfg.SharedFSRoot/{files,templates}.
func New(cfg Config) (*Worker, error) {
	store, err := filestore.New(filepath.Join(cfg.SharedFSRoot, "files"))
	if err != nil {
		return nil, err
	}
	schemas, err := schema.New(filepath.Join(cfg.SharedFSRoot, "templates"))
	if err != nil {
		return nil, err
	}
	c, err := cache.New(cfg.CacheCapacity)
	if err != nil {
		return nil, err
	}
	return &Worker{cfg: cfg, store: store, schemas: schemas, cache: c}, nil
}

// Subscribe performs the RSA-keypair-generate / Subscribe-RPC / unwrap
// handshake against the Main Worker at cfg.MainAddr (spec §4.5).
func (w *Worker) Subscribe(ctx context.Context) error {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generate worker keypair: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal worker public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	conn, err := net.DialTimeout("tcp", w.cfg.MainAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial main worker: %w", err)
	}
	client := rpc.NewClientWithCodec(rpcproto.NewClientCodec(conn))
	defer client.Close()

	req := rpcproto.SubscribeRequest{WorkerID: w.cfg.WorkerID, PublicKey: pubPEM, Address: w.cfg.ListenAddr}
	var resp rpcproto.SubscribeResponse
	call := client.Go("deltadb.Subscribe", req, &resp, nil)
	select {
	case c := <-call.Done:
		if c.Error != nil {
			return fmt.Errorf("subscribe: %w", c.Error)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	masterKey, err := crypto.Unwrap(priv, resp.WrappedKey)
	if err != nil {
		return fmt.Errorf("unwrap master key: %w", err)
	}
	sealer, err := crypto.NewSealer(resp.KeyID, masterKey)
	if err != nil {
		return fmt.Errorf("init sealer: %w", err)
	}

	w.mu.Lock()
	w.priv = priv
	w.sealer = sealer
	w.token = resp.Token
	w.mu.Unlock()

	dlog.WithWorkerID(w.cfg.WorkerID).Info().Msg("subscribed to main worker")
	return nil
}

// Serve runs this worker's RPC listener until ctx is canceled, exposing
// Process to the Main Worker.
func (w *Worker) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	server := rpc.NewServer()
	if err := server.RegisterName("deltadb", (*rpcService)(w)); err != nil {
		return fmt.Errorf("register rpc service: %w", err)
	}

	log := dlog.WithWorkerID(w.cfg.WorkerID)
	log.Info().Msg("processing worker listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go server.ServeCodec(rpcproto.NewServerCodec(conn))
	}
}

// rpcService adapts *Worker's Process method to the net/rpc calling
// convention (req, *resp) error.
type rpcService Worker

func (s *rpcService) Process(req rpcproto.ProcessRequest, resp *rpcproto.ProcessResponse) error {
	w := (*Worker)(s)
	ctx := context.Background()
	if dl := req.Deadline(); !dl.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dl)
		defer cancel()
	}
	result, version, err := w.process(ctx, req)
	if err != nil {
		de := dberr.As(err)
		resp.Status = "ERROR"
		resp.Error = de.RPCCodeAndMessage()
		return nil
	}
	resp.Status = "OK"
	resp.Result = result
	resp.Version = version
	return nil
}

// process implements the GET/PUT pipelines (spec §4.5).
func (w *Worker) process(ctx context.Context, req rpcproto.ProcessRequest) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, dberr.Wrap(dberr.DeadlineExceeded, "deadline exceeded", err)
	}
	if err := filestore.ValidateName("database", req.Database); err != nil {
		return nil, 0, err
	}
	if err := filestore.ValidateName("key", req.EntityKey); err != nil {
		return nil, 0, err
	}

	w.mu.RLock()
	sealer := w.sealer
	w.mu.RUnlock()
	if sealer == nil {
		return nil, 0, dberr.New(dberr.ServiceUnavailable, "worker not yet subscribed")
	}

	switch req.Operation {
	case rpcproto.OpPut:
		return w.put(ctx, req, sealer)
	case rpcproto.OpGet:
		return w.get(ctx, req, sealer)
	default:
		return nil, 0, dberr.New(dberr.BadInput, "unknown operation")
	}
}

func (w *Worker) put(ctx context.Context, req rpcproto.ProcessRequest, sealer *crypto.Sealer) ([]byte, int64, error) {
	if req.SchemaID != "" {
		if err := w.schemas.Validate(req.SchemaID, req.Payload); err != nil {
			return nil, 0, err
		}
	}

	sealed, err := sealer.Seal(req.Payload)
	if err != nil {
		return nil, 0, dberr.Wrap(dberr.Internal, "seal payload", err)
	}

	buildMeta := func(prevVersion int64) *dbtypes.EntityMetadata {
		return &dbtypes.EntityMetadata{
			KeyID:     sealer.KeyID(),
			Alg:       dbtypes.AlgAESGCM,
			IV:        base64.StdEncoding.EncodeToString(sealed.Nonce),
			Tag:       base64.StdEncoding.EncodeToString(sealed.Tag),
			SchemaID:  req.SchemaID,
			Version:   prevVersion + 1,
			WriterID:  w.cfg.WorkerID,
			Timestamp: time.Now().UTC(),
			Database:  req.Database,
			EntityKey: req.EntityKey,
		}
	}

	type result struct {
		meta *dbtypes.EntityMetadata
		err  error
	}
	done := make(chan result, 1)
	go func() {
		meta, err := w.store.Write(req.Database, req.EntityKey, sealed.Ciphertext, buildMeta)
		done <- result{meta, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, 0, dberr.Wrap(dberr.DeadlineExceeded, "deadline exceeded", ctx.Err())
	}
	if res.err != nil {
		return nil, 0, res.err
	}

	w.cache.Put(req.Database, req.EntityKey, cache.Entry{Plaintext: req.Payload, Version: res.meta.Version})
	metrics.EntityWritesTotal.WithLabelValues(req.Database).Inc()
	return nil, res.meta.Version, nil
}

func (w *Worker) get(ctx context.Context, req rpcproto.ProcessRequest, sealer *crypto.Sealer) ([]byte, int64, error) {
	if entry, ok := w.cache.Get(req.Database, req.EntityKey); ok {
		metrics.CacheHitsTotal.Inc()
		return entry.Plaintext, entry.Version, nil
	}
	metrics.CacheMissesTotal.Inc()

	type result struct {
		blob []byte
		meta *dbtypes.EntityMetadata
		err  error
	}
	done := make(chan result, 1)
	go func() {
		blob, meta, err := w.store.Read(req.Database, req.EntityKey)
		done <- result{blob, meta, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, 0, dberr.Wrap(dberr.DeadlineExceeded, "deadline exceeded", ctx.Err())
	}
	if res.err != nil {
		if res.err == filestore.ErrNotFound {
			return nil, 0, dberr.New(dberr.NotFound, "entity not found")
		}
		return nil, 0, dberr.Wrap(dberr.Internal, "read entity", res.err)
	}

	nonce, err := base64.StdEncoding.DecodeString(res.meta.IV)
	if err != nil {
		return nil, 0, dberr.Wrap(dberr.Internal, "decode nonce", err)
	}
	tag, err := base64.StdEncoding.DecodeString(res.meta.Tag)
	if err != nil {
		return nil, 0, dberr.Wrap(dberr.Internal, "decode tag", err)
	}

	plaintext, err := sealer.Open(res.blob, nonce, tag)
	if err != nil {
		return nil, 0, dberr.Wrap(dberr.Internal, "authentication failed", err)
	}

	w.cache.Put(req.Database, req.EntityKey, cache.Entry{Plaintext: plaintext, Version: res.meta.Version})
	metrics.EntityReadsTotal.WithLabelValues(req.Database).Inc()
	return plaintext, res.meta.Version, nil
}
