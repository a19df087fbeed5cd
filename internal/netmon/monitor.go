// Package netmon reports whether the device currently has connectivity and
// lets interested parties observe transitions.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/retailbase/possync/internal/logging"
)

// Monitor is the network-state signal the sync engine consumes. Subscribers
// are invoked on every online/offline transition; the returned cancel
// function removes the subscription and is safe to call more than once.
type Monitor interface {
	Online() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// Signal is a bare event source (e.g. a window-focus or app-foreground
// notification) the auto-sync glue can hang a trigger on.
type Signal interface {
	Subscribe(fn func()) (cancel func())
}

// =====================================================
// Manual monitor
// =====================================================

// ManualMonitor is a Monitor whose state is set explicitly. The daemon uses
// it behind its online/offline toggle endpoint; tests use it to simulate
// connectivity changes.
type ManualMonitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// NewManualMonitor creates a monitor in the given initial state.
func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{
		online: online,
		subs:   make(map[int]func(online bool)),
	}
}

// Online implements Monitor.
func (m *ManualMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline changes the state and notifies subscribers on transition.
func (m *ManualMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(online bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe implements Monitor.
func (m *ManualMonitor) Subscribe(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// =====================================================
// Probe monitor
// =====================================================

// ProbeMonitor derives connectivity by polling a health URL. It embeds a
// ManualMonitor for state and subscription plumbing and flips it according
// to probe results.
type ProbeMonitor struct {
	*ManualMonitor

	url      string
	interval time.Duration
	client   *http.Client
	log      *logging.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewProbeMonitor creates a probe against url, checking every interval.
// The monitor starts pessimistic (offline) until the first probe succeeds.
func NewProbeMonitor(url string, interval time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ProbeMonitor{
		ManualMonitor: NewManualMonitor(false),
		url:           url,
		interval:      interval,
		client:        &http.Client{Timeout: 5 * time.Second},
		log:           logging.Named("netmon"),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins probing until Stop is called or ctx is cancelled.
func (p *ProbeMonitor) Start(ctx context.Context) {
	go func() {
		defer close(p.done)

		p.probe(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.probe(ctx)
			}
		}
	}()
}

// Stop terminates probing and waits for the loop to exit.
func (p *ProbeMonitor) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *ProbeMonitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.SetOnline(false)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if p.Online() {
			p.log.Info("connectivity lost", map[string]interface{}{"url": p.url})
		}
		p.SetOnline(false)
		return
	}
	resp.Body.Close()

	// Any response at all means the network path is up; the server may
	// still refuse the method.
	if !p.Online() {
		p.log.Info("connectivity restored", map[string]interface{}{"url": p.url})
	}
	p.SetOnline(true)
}

// =====================================================
// Manual signal
// =====================================================

// ManualSignal is a Signal fired explicitly, used for focus/foreground
// triggers in hosts that have them and directly in tests.
type ManualSignal struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func()
}

// NewManualSignal creates an empty signal.
func NewManualSignal() *ManualSignal {
	return &ManualSignal{subs: make(map[int]func())}
}

// Subscribe implements Signal.
func (s *ManualSignal) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Trigger fires every current subscriber.
func (s *ManualSignal) Trigger() {
	s.mu.Lock()
	subs := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
