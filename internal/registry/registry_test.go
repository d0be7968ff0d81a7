package registry

import (
	"testing"
	"time"

	"github.com/deltadb/deltadb/internal/dbtypes"
)

func TestSubscribeThenVerifyToken(t *testing.T) {
	r := New(time.Minute)
	token, err := r.Subscribe("w1", "k1", "fp1", "127.0.0.1:9001")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	id, ok := r.VerifyToken(token)
	if !ok || id != "w1" {
		t.Fatalf("VerifyToken = (%q, %v), want (w1, true)", id, ok)
	}
}

func TestVerifyTokenRejectsUnknown(t *testing.T) {
	r := New(time.Minute)
	if _, err := r.Subscribe("w1", "k1", "fp1", "127.0.0.1:9001"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, ok := r.VerifyToken("not-a-real-token"); ok {
		t.Fatal("expected unknown token to be rejected")
	}
}

func TestRoundRobinOverAvailableWorkers(t *testing.T) {
	r := New(time.Minute)
	if _, err := r.Subscribe("w1", "k1", "fp1", "127.0.0.1:9001"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Subscribe("w2", "k1", "fp2", "127.0.0.1:9002"); err != nil {
		t.Fatal(err)
	}

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		id, ok := r.Next()
		if !ok {
			t.Fatal("expected an available worker")
		}
		seen[id]++
	}
	if seen["w1"] != 2 || seen["w2"] != 2 {
		t.Fatalf("round robin distribution = %v, want even split", seen)
	}
}

func TestNextFailsWhenRegistryEmpty(t *testing.T) {
	r := New(time.Minute)
	if _, ok := r.Next(); ok {
		t.Fatal("expected no available worker in an empty registry")
	}
}

func TestTTLExpiryTransitionsToGone(t *testing.T) {
	r := New(time.Millisecond)
	if _, err := r.Subscribe("w1", "k1", "fp1", "127.0.0.1:9001"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	r.Sweep()
	list := r.List()
	if len(list) != 1 || list[0].Status != dbtypes.WorkerGone {
		t.Fatalf("list = %+v, want single Gone worker", list)
	}

	if _, ok := r.Next(); ok {
		t.Fatal("expected no available worker after TTL expiry")
	}
}

func TestTouchRevivesWorker(t *testing.T) {
	r := New(5 * time.Millisecond)
	if _, err := r.Subscribe("w1", "k1", "fp1", "127.0.0.1:9001"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	r.Sweep()

	r.Touch("w1")
	list := r.List()
	if len(list) != 1 || list[0].Status != dbtypes.WorkerAvailable {
		t.Fatalf("list = %+v, want Available after Touch", list)
	}
}
