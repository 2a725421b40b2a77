package rtimetrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dantte-lp/lf-rti/internal/federation"
	rtimetrics "github.com/dantte-lp/lf-rti/internal/metrics"
)

func TestNewCollectorRegistersAllMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rtimetrics.NewCollector(reg)

	if c.FederatesAdmitted == nil || c.FederateState == nil || c.StateTransitions == nil ||
		c.GrantsIssued == nil || c.RelayedMessages == nil || c.RelayedBytes == nil ||
		c.MessagesDropped == nil || c.StopGrantedTotal == nil || c.StopFinalTag == nil ||
		c.ClockSyncRoundTrip == nil {
		t.Fatal("NewCollector left a metric nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestFederateAdmittedIncrements(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rtimetrics.NewCollector(reg)

	c.FederateAdmitted(3)
	c.FederateAdmitted(3)

	if got := readValue(t, c.FederatesAdmitted.WithLabelValues("3")); got != 2 {
		t.Errorf("FederatesAdmitted{fed_id=3} = %v, want 2", got)
	}
}

func TestFederateStateChangedSetsGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rtimetrics.NewCollector(reg)

	c.FederateStateChanged(1, federation.StateNotConnected, federation.StateGranted)

	if got := readValue(t, c.FederateState.WithLabelValues("1", "Granted")); got != 1 {
		t.Errorf("FederateState{fed_id=1,state=Granted} = %v, want 1", got)
	}
	if got := readValue(t, c.FederateState.WithLabelValues("1", "NotConnected")); got != 0 {
		t.Errorf("FederateState{fed_id=1,state=NotConnected} = %v, want 0", got)
	}
}

func TestStopGrantedLatchesValues(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rtimetrics.NewCollector(reg)

	c.StopGranted(12000)

	if got := readValue(t, c.StopGrantedTotal); got != 1 {
		t.Errorf("StopGrantedTotal = %v, want 1", got)
	}
	if got := readValue(t, c.StopFinalTag); got != 12000 {
		t.Errorf("StopFinalTag = %v, want 12000", got)
	}
}

func TestClockSyncSampleObserves(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rtimetrics.NewCollector(reg)

	c.ClockSyncSample(0, 5*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "rti_federation_clock_sync_round_trip_seconds" {
			found = true
		}
	}
	if !found {
		t.Fatal("clock_sync_round_trip_seconds histogram not gathered after an observation")
	}
}

// readValue extracts a counter's or gauge's current value via the
// prometheus.Metric.Write hook, avoiding a dependency on the separate
// prometheus/client_golang/prometheus/testutil package.
func readValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	default:
		t.Fatalf("metric has neither Counter nor Gauge set")
		return 0
	}
}
