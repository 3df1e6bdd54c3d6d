package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestCLIStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stderr bytes.Buffer
	if code := cli(ctx, []string{"-addr", "127.0.0.1:0"}, &stderr); code != 0 {
		t.Fatalf("expected clean shutdown, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "devapi listening") {
		t.Fatalf("missing startup log: %s", stderr.String())
	}
}

func TestCLIRejectsBadFlags(t *testing.T) {
	var stderr bytes.Buffer
	if code := cli(context.Background(), []string{"-token-ttl", "soon"}, &stderr); code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
}

func TestCLIListenFailure(t *testing.T) {
	var stderr bytes.Buffer
	if code := cli(context.Background(), []string{"-addr", "256.0.0.1:1"}, &stderr); code != 1 {
		t.Fatalf("expected listen failure, got %d", code)
	}
}
