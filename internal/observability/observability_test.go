package observability

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorderExports(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	if recorder.Name() == "" {
		t.Fatalf("expected recorder to have export name")
	}
	recorder.Observe(context.Background(), OpSubmit, true, 10*time.Millisecond)
	recorder.Observe(context.Background(), OpSubmit, false, 5*time.Millisecond)
	recorder.Observe(context.Background(), "", true, time.Second)

	snapshot := recorder.Snapshot()
	if snapshot.DurationsMS[OpSubmit] != 15 {
		t.Fatalf("expected 15ms total, snapshot=%+v", snapshot)
	}
	if snapshot.Results[OpSubmit]["success"] != 1 || snapshot.Results[OpSubmit]["error"] != 1 {
		t.Fatalf("unexpected results snapshot=%+v", snapshot)
	}
	if len(snapshot.Results) != 1 {
		t.Fatalf("empty operation must be ignored, got %+v", snapshot.Results)
	}
	v := expvar.Get(recorder.Name())
	if v == nil {
		t.Fatalf("expected expvar export to be registered")
	}
	if !strings.Contains(v.String(), OpSubmit) {
		t.Fatalf("expected expvar output to contain operation: %s", v.String())
	}
}

func TestJSONTraceTracerExports(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), OpSync)
	span.End(errors.New("offline"))
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected single span entry, got %d", len(entries))
	}
	if entries[0].Status != "error" || entries[0].Error != "offline" {
		t.Fatalf("unexpected span entry: %+v", entries[0])
	}
	if !strings.Contains(buf.String(), `"operation":"sync"`) {
		t.Fatalf("expected JSON output to contain operation: %q", buf.String())
	}
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg, "fm")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), OpQueueEnqueue, true, time.Millisecond)
	rec.Observe(context.Background(), OpQueueEnqueue, true, time.Millisecond)
	rec.Observe(context.Background(), OpQueueEnqueue, false, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "fm_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			counts[labels["operation"]+"/"+labels["status"]] = m.GetCounter().GetValue()
		}
	}
	if counts["queue.enqueue/success"] != 2 || counts["queue.enqueue/error"] != 1 {
		t.Fatalf("unexpected counters %v", counts)
	}
	if _, err := NewPrometheusMetricsRecorder(reg, "fm"); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestInstrumentRecordsOutcome(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	boom := errors.New("boom")
	if err := Instrument(context.Background(), rec, tracer, OpQueueClear, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected error passthrough, got %v", err)
	}
	if err := Instrument(context.Background(), Multi{rec, nil}, tracer, OpQueueClear, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	counts := rec.Snapshot().Results[OpQueueClear]
	if counts["error"] != 1 || counts["success"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if len(tracer.Entries()) != 2 {
		t.Fatalf("expected two spans")
	}
	if err := Instrument(context.Background(), nil, nil, "noop", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("nil recorder and tracer must be tolerated: %v", err)
	}
}
