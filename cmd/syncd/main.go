// Package main runs the possync daemon: it owns the local store, one sync
// engine per entity type, the background scheduler, and a localhost HTTP/
// WebSocket surface the POS front-end talks to.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retailbase/possync/internal/localstore"
	"github.com/retailbase/possync/internal/logging"
	"github.com/retailbase/possync/internal/models"
	"github.com/retailbase/possync/internal/netmon"
	"github.com/retailbase/possync/internal/remote"
	syncpkg "github.com/retailbase/possync/internal/sync"
	"github.com/retailbase/possync/internal/sync/scheduler"
)

type config struct {
	dataDir  string
	apiURL   string
	port     string
	logLevel string
}

func loadConfig() config {
	return config{
		dataDir:  envOr("POSSYNC_DATA_DIR", "./data"),
		apiURL:   envOr("POSSYNC_API_URL", "http://localhost:8080"),
		port:     envOr("POSSYNC_PORT", "8090"),
		logLevel: envOr("POSSYNC_LOG_LEVEL", "INFO"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := loadConfig()
	logging.Init(os.Stdout, logging.ParseLevel(cfg.logLevel))
	log := logging.Named("syncd")

	if err := os.MkdirAll(cfg.dataDir, 0755); err != nil {
		log.Error("failed to create data directory", err, map[string]interface{}{"dir": cfg.dataDir})
		os.Exit(1)
	}

	store, err := localstore.Open(cfg.dataDir)
	if err != nil {
		log.Error("failed to open local store", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := netmon.NewProbeMonitor(cfg.apiURL+"/api/health", 15*time.Second)
	monitor.Start(ctx)
	defer monitor.Stop()

	hub := NewWSHub()
	engineCfg := syncpkg.DefaultConfig()

	syncers := []syncpkg.Syncer{
		newEngine[models.Category](models.EntityCategory, "/api/categories", store, monitor, hub, cfg, engineCfg),
		newEngine[models.Product](models.EntityProduct, "/api/products", store, monitor, hub, cfg, engineCfg),
		newEngine[models.StockIn](models.EntityStockIn, "/api/stock-ins", store, monitor, hub, cfg, engineCfg),
		newEngine[models.StockOut](models.EntityStockOut, "/api/stock-outs", store, monitor, hub, cfg, engineCfg),
		newEngine[models.SalesReturn](models.EntitySalesReturn, "/api/sales-returns", store, monitor, hub, cfg, engineCfg),
	}

	sched := scheduler.New(syncers, monitor, nil)
	sched.Start(ctx)
	defer sched.Stop()
	defer func() {
		for _, s := range syncers {
			s.Cleanup()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", handleHealth)
	mux.HandleFunc("/api/sync/status", handleStatus(sched))
	mux.HandleFunc("/api/sync/trigger", handleTrigger(sched, monitor))
	mux.HandleFunc("/ws", HandleWebSocket(hub))

	srv := &http.Server{
		Addr:         "localhost:" + cfg.port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("syncd listening", map[string]interface{}{
		"addr":    srv.Addr,
		"api_url": cfg.apiURL,
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", err)
		os.Exit(1)
	}

	log.Info("syncd stopped", nil)
}

// newEngine builds one entity type's engine, wires its events into the
// WebSocket hub and arms its auto-sync triggers. The daemon has no window
// focus signal; /api/sync/trigger covers manual refresh instead.
func newEngine[T models.Entity](typ models.EntityType, path string, store *localstore.Store, monitor netmon.Monitor, hub *WSHub, cfg config, engineCfg syncpkg.Config) syncpkg.Syncer {
	engine := syncpkg.New[T](typ, store, remote.NewHTTPClient[T](cfg.apiURL, path), monitor, engineCfg)
	engine.SetEventHandler(hub)
	engine.SetupAutoSync(nil)
	return engine
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","service":"possync"}`))
}

func handleStatus(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sched.GetStatus())
	}
}

func handleTrigger(sched *scheduler.Scheduler, monitor netmon.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		// Detached from the request context: the pass outlives the response.
		if !sched.TriggerSync(context.Background()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"started": false,
				"online":  monitor.Online(),
			})
			return
		}

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"started": true,
			"online":  monitor.Online(),
		})
	}
}
