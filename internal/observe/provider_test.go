package observe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestInitProvider_RegistersPrometheusCollector(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordCaptureWindow(context.Background(), OutcomeKept)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "daymind_capture_windows_total" {
			found = true
		}
	}
	if !found {
		t.Error("daymind_capture_windows_total not exported")
	}
}

func TestInitProvider_SampleRatio(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		InstanceID:  "kitchen",
		Registerer:  prometheus.NewRegistry(),
		SampleRatio: 1e-9,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	sampled := 0
	for range 50 {
		_, span := StartSpan(context.Background(), "capture.window")
		if span.SpanContext().IsSampled() {
			sampled++
		}
		span.End()
	}
	if sampled > 1 {
		t.Errorf("sampled %d of 50 root spans at ratio 1e-9", sampled)
	}
}
