package mainsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/rpcproto"
)

func sha256sum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// forward picks an Available worker by round-robin and forwards req to
// its own Process RPC listener (spec §4.6: routing). Retries once
// against a freshly dialed connection if the cached one is dead.
func (s *Server) forward(ctx context.Context, req rpcproto.ProcessRequest) ([]byte, int64, error) {
	workerID, ok := s.registry.Next()
	if !ok {
		return nil, 0, dberr.New(dberr.ServiceUnavailable, "no available processing worker")
	}

	if dl, ok := ctx.Deadline(); ok {
		req.DeadlineUnixNano = dl.UnixNano()
	} else {
		req.DeadlineUnixNano = time.Now().Add(s.cfg.RequestDeadline).UnixNano()
	}

	resp, err := s.call(workerID, req)
	if err != nil {
		s.dropClient(workerID)
		resp, err = s.call(workerID, req)
		if err != nil {
			return nil, 0, dberr.Wrap(dberr.ServiceUnavailable, "worker unreachable", err)
		}
	}

	s.registry.Touch(workerID)

	if resp.Status != "OK" {
		return nil, 0, dberr.ParseRPCCodeAndMessage(resp.Error)
	}
	return resp.Result, resp.Version, nil
}

func (s *Server) call(workerID string, req rpcproto.ProcessRequest) (rpcproto.ProcessResponse, error) {
	client, err := s.clientFor(workerID)
	if err != nil {
		return rpcproto.ProcessResponse{}, err
	}
	var resp rpcproto.ProcessResponse
	if err := client.Call("deltadb.Process", req, &resp); err != nil {
		return rpcproto.ProcessResponse{}, err
	}
	return resp, nil
}
