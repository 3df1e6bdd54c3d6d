// Package kvtest holds the behavioural contract every key-value driver must pass.
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"fieldmission/internal/kv/core"
)

// Run exercises store against the key-value contract. The store is closed at
// the end of the run.
func Run(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "offline_forms", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "offline_forms", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, ok, err := store.Get(ctx, "offline_forms")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, []byte(`[]`)) {
		t.Fatalf("expected overwritten value, got %q", got)
	}
	if err := store.Set(ctx, "language", nil); err != nil {
		t.Fatalf("set empty: %v", err)
	}
	if v, ok, err := store.Get(ctx, "language"); err != nil || !ok || len(v) != 0 {
		t.Fatalf("expected empty value present, v=%q ok=%v err=%v", v, ok, err)
	}
	if err := store.Set(ctx, "", []byte("x")); !errors.Is(err, core.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if err := store.Remove(ctx, "offline_forms"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Remove(ctx, "offline_forms"); err != nil {
		t.Fatalf("remove absent must succeed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "offline_forms"); ok {
		t.Fatalf("expected key removed")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v")); !errors.Is(err, core.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}
