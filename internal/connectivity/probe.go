// Package connectivity reports whether the device can reach the network.
// The signal is advisory: a reachable but failing API is a submission error,
// not an offline state.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fieldmission/internal/logging"
)

// Probe answers the online question on demand.
type Probe interface {
	Online(ctx context.Context) bool
}

// HTTPProbe sends an uncached HEAD request; any 2xx answer means online.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// NewHTTPProbe returns a probe against url with the given request timeout.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProbe{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Online implements Probe.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Cache-Control", "no-cache")
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Static is a probe with a fixed, switchable answer.
type Static struct {
	online atomic.Bool
}

// NewStatic returns a probe answering online.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

// Online implements Probe.
func (s *Static) Online(context.Context) bool { return s.online.Load() }

// Set changes the answer.
func (s *Static) Set(online bool) { s.online.Store(online) }

// Monitor polls a probe and publishes changes of the online state.
type Monitor struct {
	probe    Probe
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	online  bool
	known   bool
	subs    map[int]chan bool
	nextSub int
}

// NewMonitor wraps probe. interval defaults to 10s.
func NewMonitor(probe Probe, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{probe: probe, interval: interval, logger: logging.OrDiscard(logger), subs: make(map[int]chan bool)}
}

// Run polls until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Refresh(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Refresh probes now, publishes a change if any, and returns the result.
func (m *Monitor) Refresh(ctx context.Context) bool {
	online := m.probe.Online(ctx)
	m.mu.Lock()
	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	if changed {
		for _, ch := range m.subs {
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
	m.mu.Unlock()
	if changed {
		m.logger.Info("connectivity changed", "online", online)
	}
	return online
}

// Online implements Probe with a live check.
func (m *Monitor) Online(ctx context.Context) bool { return m.Refresh(ctx) }

// Last returns the last observed state and whether any probe ran yet.
func (m *Monitor) Last() (online, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online, m.known
}

// Subscribe returns a channel receiving the new state on every change.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
}
