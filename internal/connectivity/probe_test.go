package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPProbeOnlineOn2xx(t *testing.T) {
	var gotMethod, gotCache atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod.Store(r.Method)
		gotCache.Store(r.Header.Get("Cache-Control"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	probe := NewHTTPProbe(srv.URL, time.Second)
	require.True(t, probe.Online(context.Background()))
	require.Equal(t, http.MethodHead, gotMethod.Load())
	require.Equal(t, "no-cache", gotCache.Load())
}

func TestHTTPProbeOfflineOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	require.False(t, NewHTTPProbe(srv.URL, time.Second).Online(context.Background()))
}

func TestHTTPProbeOfflineWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	require.False(t, NewHTTPProbe(url, 200*time.Millisecond).Online(context.Background()))
}

func TestStaticProbe(t *testing.T) {
	s := NewStatic(false)
	require.False(t, s.Online(context.Background()))
	s.Set(true)
	require.True(t, s.Online(context.Background()))
}

func TestMonitorEmitsOnlyOnChange(t *testing.T) {
	static := NewStatic(true)
	m := NewMonitor(static, time.Hour, nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	ctx := context.Background()
	require.True(t, m.Refresh(ctx))
	require.True(t, <-ch)

	m.Refresh(ctx)
	select {
	case v := <-ch:
		t.Fatalf("unexpected emission %v without change", v)
	default:
	}

	static.Set(false)
	require.False(t, m.Refresh(ctx))
	require.False(t, <-ch)

	online, known := m.Last()
	require.True(t, known)
	require.False(t, online)
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	probe := probeFunc(func(context.Context) bool {
		calls.Add(1)
		return true
	})
	m := NewMonitor(probe, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	m := NewMonitor(NewStatic(true), time.Hour, nil)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)
	m.Refresh(context.Background())
}

type probeFunc func(context.Context) bool

func (f probeFunc) Online(ctx context.Context) bool { return f(ctx) }
