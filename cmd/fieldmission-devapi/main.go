// Command fieldmission-devapi serves an in-memory implementation of the
// mission API with demo data, for local development of the client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldmission/internal/devapi"
	"fieldmission/internal/logging"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("fieldmission-devapi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOr("FIELDMISSION_DEVAPI_ADDR", "127.0.0.1:8081"), "listen address")
	secret := fs.String("secret", envOr("FIELDMISSION_DEVAPI_SECRET", "fieldmission-dev-secret"), "token signing secret")
	ttl := fs.Duration("token-ttl", 12*time.Hour, "issued token lifetime")
	level := fs.String("log-level", "info", "debug|info|warn|error")
	format := fs.String("log-format", "text", "text|json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logger := logging.New(stderr, *level, *format)

	api := devapi.New(devapi.WithSecret(*secret), devapi.WithTokenTTL(*ttl), devapi.WithLogger(logger))
	if err := api.Seed(); err != nil {
		logger.Error("seed demo data", "error", err)
		return 1
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("listen", "addr", *addr, "error", err)
		return 1
	}
	srv := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("devapi listening", "addr", ln.Addr().String(), "login", devapi.DemoLogin, "password", devapi.DemoPassword)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_, _ = fmt.Fprintf(stderr, "shutdown: %v\n", err)
		return 1
	}
	logger.Info("devapi stopped")
	return 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
