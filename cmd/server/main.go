package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"toolsync.ai/internal/persistence/eventbus"
	persistlog "toolsync.ai/internal/persistence/log"
	"toolsync.ai/internal/sim/tuning"
	"toolsync.ai/internal/sim/world"
	"toolsync.ai/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	// Environment supplies the defaults; explicit flags win.
	envCfg, err := tuning.ParseServerEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	var (
		addr        = flag.String("addr", envCfg.Addr, "http listen address")
		worldID     = flag.String("world", envCfg.WorldID, "world id")
		dataDir     = flag.String("data", envCfg.DataDir, "runtime data directory")
		tuningPath  = flag.String("tuning", envCfg.TuningPath, "path to tuning.yaml")
		disableDB   = flag.Bool("disable_db", envCfg.DisableDB, "disable the sqlite tick/audit index")
		indexKind   = flag.String("index", envCfg.IndexBackend, "index backend: sqlite|none")
		enableAdmin = flag.Bool("admin", envCfg.EnableAdmin, "serve loopback-only /admin/v1 endpoints")
		redisURL    = flag.String("redis", envCfg.RedisURL, "redis url for the live event feed (empty to disable)")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	w, err := world.New(world.ConfigFromTuning(*worldID, tune))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Optional read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *indexKind, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTools(*worldID, tune); err != nil {
			logger.Printf("index backend: upsert tools: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	ticks := multiTickLogger{tickLog}
	audits := multiAuditLogger{auditLog}
	if idx != nil {
		ticks = append(ticks, idx)
		audits = append(audits, idx)
	}

	var bus *eventbus.Publisher
	if *redisURL != "" {
		bus, err = eventbus.Open(eventbus.Options{
			URL:     *redisURL,
			WorldID: *worldID,
			Logger:  log.New(os.Stdout, "[eventbus] ", log.LstdFlags|log.Lmicroseconds),
		})
		if err != nil {
			logger.Fatalf("event bus: %v", err)
		}
		defer bus.Close()
		ticks = append(ticks, bus)
	}
	w.SetTickLogger(ticks)
	w.SetAuditLogger(audits)

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	mux.HandleFunc("/metrics", metricsHandler(w, idx, bus))
	if *enableAdmin {
		mux.HandleFunc("/admin/v1/state", adminStateHandler(w))
		mux.HandleFunc("/admin/v1/interact", adminInteractHandler(w.Inbox()))
	} else {
		logger.Printf("admin endpoints disabled")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s tools=%d tick_rate=%d", *addr, *worldID, len(tune.Tools), tune.TickRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	<-worldDone
	logger.Printf("stopped at tick=%d", w.CurrentTick())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
