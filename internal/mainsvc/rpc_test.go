package mainsvc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net"
	"net/rpc"
	"testing"
	"time"

	"github.com/deltadb/deltadb/internal/dbtypes"
	"github.com/deltadb/deltadb/internal/rpcproto"
)

func testWorkerPublicKeyPEM(t *testing.T) []byte {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func TestSubscribeRegistersWorker(t *testing.T) {
	srv := newTestServer(t, "adminsecret")
	svc := (*rpcService)(srv)

	req := rpcproto.SubscribeRequest{
		WorkerID:  "w1",
		PublicKey: testWorkerPublicKeyPEM(t),
		Address:   "127.0.0.1:9001",
	}
	var resp rpcproto.SubscribeResponse
	if err := svc.Subscribe(req, &resp); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if resp.Token == "" || resp.KeyID == "" || len(resp.WrappedKey) == 0 {
		t.Fatalf("incomplete subscribe response: %+v", resp)
	}

	workerID, ok := srv.registry.VerifyToken(resp.Token)
	if !ok || workerID != "w1" {
		t.Fatalf("VerifyToken = (%q, %v), want (w1, true)", workerID, ok)
	}
}

func TestSubscribeRejectsMissingFields(t *testing.T) {
	srv := newTestServer(t, "adminsecret")
	svc := (*rpcService)(srv)

	tests := []rpcproto.SubscribeRequest{
		{WorkerID: "", PublicKey: testWorkerPublicKeyPEM(t), Address: "127.0.0.1:9001"},
		{WorkerID: "w1", PublicKey: nil, Address: "127.0.0.1:9001"},
		{WorkerID: "w1", PublicKey: testWorkerPublicKeyPEM(t), Address: ""},
	}
	for i, req := range tests {
		var resp rpcproto.SubscribeResponse
		if err := svc.Subscribe(req, &resp); err == nil {
			t.Fatalf("case %d: expected error, got none", i)
		}
	}
}

func TestAuthorizeProcessWithWorkerToken(t *testing.T) {
	srv := newTestServer(t, "adminsecret")
	token, err := srv.registry.Subscribe("w1", "key-1", "fp1", "127.0.0.1:9001")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	err = srv.authorizeProcess(rpcproto.ProcessRequest{Token: token, Operation: rpcproto.OpPut})
	if err != nil {
		t.Fatalf("expected worker token to authorize any operation, got: %v", err)
	}
}

func TestAuthorizeProcessRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t, "adminsecret")
	if err := srv.authorizeProcess(rpcproto.ProcessRequest{Operation: rpcproto.OpGet}); err == nil {
		t.Fatal("expected missing token to be rejected")
	}
}

func TestAuthorizeProcessEnforcesWritePermission(t *testing.T) {
	srv := newTestServer(t, "adminsecret")
	_, secret, err := srv.auth.Create("reader", dbtypes.Permissions{dbtypes.PermRead}, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := srv.authorizeProcess(rpcproto.ProcessRequest{Token: secret, Operation: rpcproto.OpGet}); err != nil {
		t.Fatalf("expected read permission to authorize GET, got: %v", err)
	}
	if err := srv.authorizeProcess(rpcproto.ProcessRequest{Token: secret, Operation: rpcproto.OpPut}); err == nil {
		t.Fatal("expected read-only key to be rejected for PUT")
	}
}

// fakeProcWorker is a minimal stand-in for a Processing Worker's RPC
// surface, used to exercise Server.forward end to end without a real
// filestore/crypto pipeline behind it.
type fakeProcWorker struct{}

func (f *fakeProcWorker) Process(req rpcproto.ProcessRequest, resp *rpcproto.ProcessResponse) error {
	resp.Status = "OK"
	resp.Result = []byte(`{"echo":true}`)
	resp.Version = 1
	return nil
}

func startFakeProcWorker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := rpc.NewServer()
	if err := server.RegisterName("deltadb", &fakeProcWorker{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go server.ServeCodec(rpcproto.NewServerCodec(conn))
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String()
}

func TestForwardRoutesToSubscribedWorker(t *testing.T) {
	srv := newTestServer(t, "adminsecret")
	addr := startFakeProcWorker(t)

	if _, err := srv.registry.Subscribe("w1", "key-1", "fp1", addr); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, version, err := srv.forward(ctx, rpcproto.ProcessRequest{
		Database:  "orders",
		EntityKey: "order-1",
		Operation: rpcproto.OpGet,
	})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if version != 1 || string(result) != `{"echo":true}` {
		t.Fatalf("forward result = (%s, %d), want echo/1", result, version)
	}
}
