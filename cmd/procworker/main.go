// Command procworker runs a DeltaDatabase Processing Worker: it
// subscribes to a Main Worker to obtain its wrapped master key, then
// serves Process(GET|PUT) RPCs against its slice of the shared
// filesystem (spec §4.5).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deltadb/deltadb/internal/dlog"
	"github.com/deltadb/deltadb/internal/procsvc"
)

func main() {
	mainAddr := flag.String("main-addr", "127.0.0.1:8081", "Main Worker RPC address")
	workerID := flag.String("worker-id", "", "unique worker id (required)")
	listenAddr := flag.String("rpc-addr", "127.0.0.1:9001", "this worker's own RPC listen address")
	sharedFS := flag.String("shared-fs", "./data/shared", "shared filesystem root (contains db/)")
	cacheCapacity := flag.Int("cache-capacity", 0, "LRU cache capacity (0 uses the package default)")
	subscribeTimeout := flag.Duration("subscribe-timeout", 15*time.Second, "timeout for the Subscribe handshake")
	jsonLogs := flag.Bool("json-logs", false, "emit logs as JSON instead of console format")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	dlog.Init(dlog.Config{Level: dlog.Level(*logLevel), JSONOutput: *jsonLogs})
	log := dlog.WithComponent("procworker")

	if *workerID == "" {
		log.Fatal().Msg("-worker-id is required")
	}

	w, err := procsvc.New(procsvc.Config{
		WorkerID:      *workerID,
		MainAddr:      *mainAddr,
		ListenAddr:    *listenAddr,
		SharedFSRoot:  filepath.Join(*sharedFS, "db"),
		CacheCapacity: *cacheCapacity,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init processing worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subCtx, subCancel := context.WithTimeout(ctx, *subscribeTimeout)
	err = w.Subscribe(subCtx)
	subCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("subscribe to main worker")
	}

	go func() {
		if err := w.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("rpc server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")
	cancel()
}
