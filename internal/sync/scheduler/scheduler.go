// Package scheduler provides background sync scheduling across all entity
// types: a periodic pass while online, an immediate pass on connectivity
// restore, and manual triggers for the API layer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/retailbase/possync/internal/logging"
	"github.com/retailbase/possync/internal/netmon"
	syncpkg "github.com/retailbase/possync/internal/sync"
)

// Scheduler drives a set of sync engines. Each engine keeps its own
// single-flight guarantee; the scheduler only decides when passes happen.
type Scheduler struct {
	syncers  []syncpkg.Syncer
	monitor  netmon.Monitor
	interval time.Duration
	log      *logging.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	lastSync  time.Time
	unsubNet  func()
}

// Config holds scheduler configuration.
type Config struct {
	// Interval is how often a full pass over all engines runs while
	// online. Default: 15 minutes.
	Interval time.Duration
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() *Config {
	return &Config{Interval: 15 * time.Minute}
}

// New creates a scheduler over the given engines.
func New(syncers []syncpkg.Syncer, monitor netmon.Monitor, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		syncers:  syncers,
		monitor:  monitor,
		interval: config.Interval,
		log:      logging.Named("scheduler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins background operation: the periodic loop plus a subscription
// that syncs everything as soon as connectivity comes back.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	if s.monitor != nil {
		s.unsubNet = s.monitor.Subscribe(func(online bool) {
			if online {
				s.log.Info("connectivity restored, syncing all entity types", nil)
				go s.runAll(ctx, false)
			}
		})
	}

	s.wg.Add(1)
	go s.periodicLoop(ctx)

	s.log.Info("background sync scheduler started", map[string]interface{}{
		"entity_types": len(s.syncers),
		"interval":     s.interval.String(),
	})
}

// Stop shuts the scheduler down gracefully. In-flight passes are left to
// finish inside their engines.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.unsubNet != nil {
		s.unsubNet()
		s.unsubNet = nil
	}

	close(s.stopCh)
	s.wg.Wait()

	s.log.Info("background sync scheduler stopped", nil)
}

func (s *Scheduler) periodicLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.monitor != nil && !s.monitor.Online() {
				continue
			}
			go s.runAll(ctx, false)
		}
	}
}

// runAll runs one pass per engine, sequentially. Sequential keeps the device
// from opening five connections at once on a flaky link, and the per-engine
// pass is already concurrent-safe.
func (s *Scheduler) runAll(ctx context.Context, force bool) {
	passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	for _, syncer := range s.syncers {
		select {
		case <-passCtx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		var result syncpkg.SyncResult
		if force {
			result = syncer.ForceSync(passCtx)
		} else {
			result = syncer.Sync(passCtx)
		}

		if !result.Success {
			s.log.Warn("sync pass failed", map[string]interface{}{
				"entity_type": string(syncer.Type()),
				"error":       result.Error,
			})
			continue
		}
		s.log.Debug("sync pass completed", map[string]interface{}{
			"entity_type": string(syncer.Type()),
			"adds":        result.Adds.Pushed,
			"updates":     result.Updates.Pushed,
			"deletes":     result.Deletes.Pushed,
			"pulled":      result.Pulled,
		})
	}

	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()
}

// TriggerSync starts an asynchronous pass over all engines. Returns false
// when offline; engines already mid-pass absorb the trigger themselves.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	if s.monitor != nil && !s.monitor.Online() {
		return false
	}
	go s.runAll(ctx, false)
	return true
}

// SyncNow runs a forced pass over all engines and waits for completion.
func (s *Scheduler) SyncNow(ctx context.Context) {
	s.runAll(ctx, true)
}

// Status is an aggregate snapshot of the scheduler and every engine.
type Status struct {
	IsRunning bool                      `json:"is_running"`
	IsOnline  bool                      `json:"is_online"`
	LastSync  *time.Time                `json:"last_sync,omitempty"`
	Entities  map[string]syncpkg.Status `json:"entities"`
}

// GetStatus returns the current aggregate status.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	status := Status{
		IsRunning: s.isRunning,
		Entities:  make(map[string]syncpkg.Status, len(s.syncers)),
	}
	if !s.lastSync.IsZero() {
		t := s.lastSync
		status.LastSync = &t
	}
	s.mu.RUnlock()

	if s.monitor != nil {
		status.IsOnline = s.monitor.Online()
	}
	for _, syncer := range s.syncers {
		status.Entities[string(syncer.Type())] = syncer.GetStatus()
	}
	return status
}

// IsRunning reports whether the scheduler has been started.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
