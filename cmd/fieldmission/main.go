// Command fieldmission drives the field mission client from a terminal: sign
// in, search the fleet, submit mission forms and manage the offline queue.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"fieldmission/internal/config"
	"fieldmission/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
)

var exitFunc = os.Exit

var errUsage = errors.New("usage")

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"login":  cmdLogin,
	"logout": cmdLogout,
	"whoami": cmdWhoami,
	"forms":  cmdForms,
	"search": cmdSearch,
	"submit": cmdSubmit,
	"queue":  cmdQueue,
	"prefs":  cmdPrefs,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	_, _ = fmt.Fprintf(w, "usage: fieldmission [flags] <%s> [args]\n", strings.Join(names, "|"))
	fs.PrintDefaults()
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fieldmission", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file (default $FIELDMISSION_CONFIG)")
	stats := fs.Bool("stats", false, "print operation metrics to stderr on exit")
	metricsFile := fs.String("metrics-file", "", "write operation metrics in Prometheus text format to this file on exit")
	trace := fs.Bool("trace", false, "write one JSON trace line per operation to stderr")
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr, fs)
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		printUsage(stderr, fs)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	var tracer observability.Tracer
	if *trace {
		tracer = observability.NewJSONTracer(stderr)
	}
	a, err := newApp(ctx, cfg, tracer, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error("close storage", "error", err)
		}
	}()

	code := 0
	if err := cmd(ctx, a, rest[1:]); err != nil {
		code = 1
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			code = 2
		}
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintf(stderr, "%s: %v\n", rest[0], err)
		}
	}
	if *stats {
		enc := json.NewEncoder(stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(a.stats.Snapshot())
	}
	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, a.registry); err != nil {
			_, _ = fmt.Fprintf(stderr, "metrics: %v\n", err)
			if code == 0 {
				code = 1
			}
		}
	}
	return code
}

// newFlags returns a subcommand flag set whose parse errors map to exit code 2.
func newFlags(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}
