package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(reg)

	tel.CatalogTotal.Add(3)
	tel.FetchSucceeded.Inc()
	tel.FetchFailed.Inc()

	if v := counterValue(t, tel.CatalogTotal); v != 3 {
		t.Fatalf("expected catalog total 3, got %v", v)
	}
	if v := counterValue(t, tel.FetchSucceeded); v != 1 {
		t.Fatalf("expected fetch succeeded 1, got %v", v)
	}
	if v := counterValue(t, tel.FetchFailed); v != 1 {
		t.Fatalf("expected fetch failed 1, got %v", v)
	}
}

func TestObservePhaseDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(reg)

	tel.ObservePhase("load", time.Now().Add(-50*time.Millisecond))
}

func TestDoubleRegisterIsNonFatal(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	// Registering a second Telemetry against the same registry collides on
	// metric names; New must log and continue rather than panic.
	New(reg)
}
