package mainsvc

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"time"

	"github.com/deltadb/deltadb/internal/crypto"
	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dbtypes"
	"github.com/deltadb/deltadb/internal/dlog"
	"github.com/deltadb/deltadb/internal/rpcproto"
)

// dialRPC opens a TCP connection to addr, bounded by a 5s dial timeout.
// The caller wraps it in the JSON codec (rpcproto.NewClientCodec).
func dialRPC(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, 5*time.Second)
}

// ServeRPC runs the deltadb RPC listener until ctx is canceled, exposing
// Subscribe (called by Processing Workers) and Process (a proxy for RPC
// clients that bypass REST, per spec §4.6: "same service" for both
// roles).
func (s *Server) ServeRPC(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.RPCAddr)
	if err != nil {
		return fmt.Errorf("listen rpc: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	server := rpc.NewServer()
	if err := server.RegisterName("deltadb", (*rpcService)(s)); err != nil {
		return fmt.Errorf("register rpc service: %w", err)
	}

	dlog.WithComponent("mainworker-rpc").Info().Msg("rpc listening")
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

// rpcService adapts *Server's Subscribe/Process methods to the net/rpc
// calling convention (req, *resp) error.
type rpcService Server

// Subscribe handles a Processing Worker's subscription handshake (spec
// §4.5/§4.6): validates the worker id and public key, wraps the master
// key to it, and registers a WorkerRecord.
func (s *rpcService) Subscribe(req rpcproto.SubscribeRequest, resp *rpcproto.SubscribeResponse) error {
	srv := (*Server)(s)
	if req.WorkerID == "" {
		return fmt.Errorf("%s", dberr.New(dberr.BadInput, "worker_id must not be empty").RPCCodeAndMessage())
	}
	if len(req.PublicKey) == 0 {
		return fmt.Errorf("%s", dberr.New(dberr.BadInput, "public_key must not be empty").RPCCodeAndMessage())
	}
	if req.Address == "" {
		return fmt.Errorf("%s", dberr.New(dberr.BadInput, "address must not be empty").RPCCodeAndMessage())
	}

	sealer, err := crypto.NewSealer(srv.keyID, srv.key)
	if err != nil {
		return fmt.Errorf("%s", dberr.Wrap(dberr.Internal, "init sealer", err).RPCCodeAndMessage())
	}
	wrapped, err := sealer.WrapForWorker(req.PublicKey)
	if err != nil {
		return fmt.Errorf("%s", dberr.Wrap(dberr.BadInput, "invalid public key", err).RPCCodeAndMessage())
	}

	fingerprint := fingerprintOf(wrapped)
	token, err := srv.registry.Subscribe(req.WorkerID, srv.keyID, fingerprint, req.Address)
	if err != nil {
		return fmt.Errorf("%s", dberr.As(err).RPCCodeAndMessage())
	}

	resp.Token = token
	resp.WrappedKey = wrapped
	resp.KeyID = srv.keyID
	dlog.WithWorkerID(req.WorkerID).Info().Msg("worker subscribed")
	return nil
}

// Process proxies a direct RPC client's Process call to the Processing
// Worker chosen by round-robin, the same routing path /entity/* REST
// traffic takes (spec §4.6).
func (s *rpcService) Process(req rpcproto.ProcessRequest, resp *rpcproto.ProcessResponse) error {
	srv := (*Server)(s)
	if err := srv.authorizeProcess(req); err != nil {
		resp.Status = "ERROR"
		resp.Error = dberr.As(err).RPCCodeAndMessage()
		return nil
	}

	ctx := context.Background()
	if dl := req.Deadline(); !dl.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dl)
		defer cancel()
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, srv.cfg.RequestDeadline)
		defer cancel()
	}

	result, version, err := srv.forward(ctx, req)
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

// authorizeProcess gates a direct RPC Process call (spec §4.6
// authorization table, applied to the RPC entry point rather than
// REST): a Subscribe-issued worker token authorizes any operation
// (scope: Process RPC only, §9 open question (b)); otherwise the token
// must be an AuthStore secret or SessionToken carrying read (for GET) or
// write (for PUT).
func (s *Server) authorizeProcess(req rpcproto.ProcessRequest) error {
	if req.Token == "" {
		return dberr.New(dberr.Unauthorized, "token required")
	}
	if _, ok := s.registry.VerifyToken(req.Token); ok {
		return nil
	}
	perms, ok := s.authenticate(req.Token)
	if !ok {
		return dberr.New(dberr.Unauthorized, "invalid token")
	}
	required := dbtypes.PermRead
	if req.Operation == rpcproto.OpPut {
		required = dbtypes.PermWrite
	}
	if !perms.has(required) {
		return dberr.New(dberr.Forbidden, "insufficient permission")
	}
	return nil
}

// fingerprintOf derives a short, non-reversible identifier for a wrapped
// key blob, suitable for the WorkerRecord's wrapped_key_fingerprint
// field (spec §3) without exposing the wrapped key itself in logs or
// /admin/workers output.
func fingerprintOf(wrapped []byte) string {
	sum := sha256sum(wrapped)
	return sum[:16]
}
