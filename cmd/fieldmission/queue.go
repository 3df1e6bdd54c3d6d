package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"fieldmission/internal/connectivity"
	"fieldmission/internal/geo"
	"fieldmission/internal/submission"
	"fieldmission/pkg/domain"
)

func (a *app) coordinator(offline bool) *submission.Coordinator {
	return &submission.Coordinator{
		Queue:    a.queue,
		API:      a.client,
		Probe:    a.probe(offline),
		Session:  a.sessions,
		Location: geo.Options{Timeout: a.cfg.LocationTimeout, MaxAge: a.cfg.LocationMaxAge},
		Metrics:  a.metrics,
		Tracer:   a.tracer,
		Logger:   a.logger,
	}
}

func cmdQueue(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return queueList(a)
	}
	rest := args[1:]
	switch args[0] {
	case "list", "ls":
		return queueList(a)
	case "edit":
		fs := newFlags(a, "queue edit")
		description := fs.String("description", "", "new description")
		if err := parse(fs, rest); err != nil {
			return err
		}
		if fs.NArg() != 1 || *description == "" {
			return fmt.Errorf("%w: queue edit -description <text> <id>", errUsage)
		}
		err := a.queue.UpdateDescription(ctx, fs.Arg(0), *description)
		if domain.IsNotFound(err) {
			a.printf("no offline form %s\n", fs.Arg(0))
			return nil
		}
		return err
	case "delete", "rm":
		if len(rest) != 1 {
			return fmt.Errorf("%w: queue delete <id>", errUsage)
		}
		return a.queue.Delete(ctx, rest[0])
	case "clear":
		if err := a.queue.Clear(ctx); err != nil {
			return err
		}
		a.printf("offline queue cleared\n")
		return nil
	case "sync":
		if len(rest) != 1 {
			return fmt.Errorf("%w: queue sync <id>", errUsage)
		}
		if err := a.coordinator(false).Sync(ctx, rest[0]); err != nil {
			return err
		}
		a.printf("synced %s (%d waiting)\n", rest[0], a.queue.Count())
		return nil
	case "sync-all":
		report := a.coordinator(false).SyncAll(ctx)
		for _, id := range report.Synced {
			a.printf("synced %s\n", id)
		}
		for _, f := range report.Failed {
			a.printf("failed %s: %v\n", f.ID, f.Err)
		}
		a.printf("%d waiting\n", report.Remaining)
		if report.Err != nil {
			return report.Err
		}
		if len(report.Failed) > 0 {
			return errors.New("some entries were rejected")
		}
		return nil
	case "watch":
		fs := newFlags(a, "queue watch")
		limit := fs.Duration("for", 0, "stop after this long (default: until interrupted)")
		if err := parse(fs, rest); err != nil {
			return err
		}
		return queueWatch(ctx, a, *limit)
	case "export":
		fs := newFlags(a, "queue export")
		format := fs.String("format", "json", "json or csv")
		output := fs.String("o", "", "output file (default stdout)")
		if err := parse(fs, rest); err != nil {
			return err
		}
		var w io.Writer = a.stdout
		if *output != "" {
			f, err := os.Create(*output)
			if err != nil {
				return fmt.Errorf("create export: %w", err)
			}
			defer f.Close()
			w = f
		}
		return a.queue.Export(w, *format)
	default:
		return fmt.Errorf("%w: queue [list|edit|delete|clear|sync|sync-all|watch|export]", errUsage)
	}
}

// queueWatch reports connectivity changes with the number of waiting forms.
// Syncing stays a manual step.
func queueWatch(ctx context.Context, a *app, limit time.Duration) error {
	var (
		watchCtx context.Context
		cancel   context.CancelFunc
	)
	if limit > 0 {
		watchCtx, cancel = context.WithTimeout(ctx, limit)
	} else {
		watchCtx, cancel = context.WithCancel(ctx)
	}
	mon := connectivity.NewMonitor(a.probe(false), a.cfg.ProbeInterval, a.logger)
	states, unsubscribe := mon.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.Run(watchCtx)
	}()
	defer func() {
		cancel()
		<-done
		unsubscribe()
	}()

	for {
		select {
		case <-watchCtx.Done():
			return nil
		case online := <-states:
			waiting := len(a.queue.Load(ctx))
			switch {
			case !online:
				a.printf("offline, %d waiting\n", waiting)
			case waiting > 0:
				a.printf("online, %d waiting: run queue sync-all\n", waiting)
			default:
				a.printf("online, 0 waiting\n")
			}
		}
	}
}

func queueList(a *app) error {
	entries := a.queue.List()
	if len(entries) == 0 {
		a.printf("offline queue is empty\n")
		return nil
	}
	for _, e := range entries {
		a.printf("%s\t%s\t%s\t%s\n", e.ID, e.EnqueuedAt.Local().Format(time.DateTime), entryTitle(e), e.Payload.Data.Description)
	}
	return nil
}

func entryTitle(e domain.OfflineFormEntry) string {
	if e.Title != "" {
		return e.Title
	}
	return e.Payload.FormID
}
