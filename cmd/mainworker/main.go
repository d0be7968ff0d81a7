// Command mainworker runs the DeltaDatabase Main Worker: the REST +
// RPC front-tier that authenticates clients and routes /entity/*
// traffic to subscribed Processing Workers (spec §4.6). Flags follow
// the teacher's flat flag-package style (cmd/warren-migrate/main.go)
// rather than the cobra command tree used by the multi-subcommand
// warren CLI, since this binary has exactly one mode of operation.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deltadb/deltadb/internal/dlog"
	"github.com/deltadb/deltadb/internal/mainsvc"
	"github.com/deltadb/deltadb/internal/metrics"
	"github.com/deltadb/deltadb/internal/registry"
)

func main() {
	restAddr := flag.String("rest-addr", "127.0.0.1:8080", "REST listen address")
	rpcAddr := flag.String("rpc-addr", "127.0.0.1:8081", "RPC listen address (Subscribe/Process)")
	sharedFS := flag.String("shared-fs", "./data/shared", "shared filesystem root (contains db/templates)")
	workerTTL := flag.Duration("worker-ttl", registry.DefaultTTL, "Processing Worker TTL before marked Gone")
	sessionTTL := flag.Duration("session-ttl", time.Hour, "session token lifetime")
	requestDeadline := flag.Duration("request-deadline", 10*time.Second, "default per-request deadline propagated to workers")
	configPath := flag.String("config", "", "optional YAML bootstrap config file (worker_ttl, session_ttl, initial_admin_keys)")
	jsonLogs := flag.Bool("json-logs", false, "emit logs as JSON instead of console format")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	dlog.Init(dlog.Config{Level: dlog.Level(*logLevel), JSONOutput: *jsonLogs})
	log := dlog.WithComponent("mainworker")

	adminSecret := os.Getenv("DELTADB_ADMIN_SECRET")
	if adminSecret == "" {
		log.Warn().Msg("DELTADB_ADMIN_SECRET not set; no admin boot key will be available")
	}

	var bootstrapKeys []mainsvc.BootstrapKey
	if *configPath != "" {
		fc, err := loadFileConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load config file")
		}
		applyFileConfigDefaults(fc, workerTTL, sessionTTL)
		bootstrapKeys = fc.bootstrapKeys()
	}

	srv, err := mainsvc.New(mainsvc.Config{
		RESTAddr:        *restAddr,
		RPCAddr:         *rpcAddr,
		WorkerTTL:       *workerTTL,
		AdminSecret:     adminSecret,
		SessionTTL:      *sessionTTL,
		AuthDBPath:      filepath.Join(*sharedFS, "mainworker-auth.db"),
		SchemaDir:       filepath.Join(*sharedFS, "db", "templates"),
		RequestDeadline: *requestDeadline,
		InitialKeys:     bootstrapKeys,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init main worker")
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.RunRegistrySweeper(ctx, *workerTTL/2)
	go metrics.NewCollector(srv, 15*time.Second).Run(ctx)

	go func() {
		if err := srv.ServeRPC(ctx); err != nil {
			log.Error().Err(err).Msg("rpc server")
		}
	}()

	httpServer := &http.Server{
		Addr:         *restAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", *restAddr).Msg("rest listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("rest server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
