// Package blobtest holds the behavioural contract every blob driver must pass.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"fieldmission/internal/blob/core"
)

// Run exercises store against the blob contract using keys under photos/.
func Run(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()
	payload := []byte("\xff\xd8jpeg-bytes")

	info, err := store.Put(ctx, "photos/draft-1", bytes.NewReader(payload), core.PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"draft": "draft-1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "photos/draft-1" || info.Size != int64(len(payload)) {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "photos/draft-1", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	head, err := store.Head(ctx, "photos/draft-1")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", head.ContentType)
	}
	got, rc, err := store.Get(ctx, "photos/draft-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bytes.Equal(body, payload) || got.Size != int64(len(payload)) {
		t.Fatalf("unexpected body %q info %+v", body, got)
	}
	if _, err := store.Put(ctx, "photos/draft-2", bytes.NewReader([]byte("b")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if _, err := store.Put(ctx, "other/x", bytes.NewReader([]byte("c")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "photos/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "photos/draft-1" || list[1].Key != "photos/draft-2" {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := store.Delete(ctx, "photos/draft-1")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = store.Delete(ctx, "photos/draft-1")
	if err != nil || ok {
		t.Fatalf("second delete should report absence: ok=%v err=%v", ok, err)
	}
	if _, _, err := store.Get(ctx, "photos/draft-1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
	if _, err := store.Head(ctx, "photos/draft-1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head, got %v", err)
	}
}
