// Package rtimetrics implements the Prometheus metrics surface for the
// RTI daemon: federate admission/state, grant issuance, relay
// volume, stop-protocol completion, and clock-sync sample round-trips.
//
// The Collector implements federation.MetricsReporter and
// clocksync.SampleRecorder by structural typing, so package federation
// and package clocksync never import this package -- only cmd/rti wires
// the three together.
package rtimetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rti"
	subsystem = "federation"
)

// Label names shared across the federate-keyed metrics below.
const (
	labelFedID = "fed_id"
	labelSrc   = "src_fed_id"
	labelDst   = "dst_fed_id"
	labelFrom  = "from_state"
	labelTo    = "to_state"
)

// Collector holds every Prometheus metric the RTI reports.
type Collector struct {
	// FederatesAdmitted counts completed admissions, per federate.
	FederatesAdmitted *prometheus.CounterVec

	// FederateState is a gauge per (fed_id, state) that reads 1 for a
	// federate's current state and 0 for each state it has left; a state
	// it has never entered has no series. With this, a
	// dashboard can show the live federation-wide state distribution
	// without a separate enum-to-number mapping.
	FederateState *prometheus.GaugeVec

	// StateTransitions counts every State transition, labeled with the
	// old and new state, so a dashboard can chart the transition rate
	// between any two states without deriving it from FederateState.
	StateTransitions *prometheus.CounterVec

	// GrantsIssued counts TIME_ADVANCE_GRANT messages sent, per federate.
	GrantsIssued *prometheus.CounterVec

	// RelayedMessages and RelayedBytes count successfully forwarded
	// MESSAGE/TIMED_MESSAGE traffic, per (src, dst).
	RelayedMessages *prometheus.CounterVec
	RelayedBytes    *prometheus.CounterVec

	// MessagesDropped counts relay attempts to a disconnected federate.
	MessagesDropped *prometheus.CounterVec

	// StopGrantedTotal counts STOP_GRANTED broadcasts; per P4 this
	// should never exceed 1 for a single federation's lifetime, so a
	// value > 1 observed across process restarts is not itself a bug,
	// but a spike within one process's uptime is worth alerting on.
	StopGrantedTotal prometheus.Counter
	// StopFinalTag records the final stop tag's time component of the
	// most recent STOP_GRANTED.
	StopFinalTag prometheus.Gauge

	// ClockSyncRoundTrip observes one clock-sync round's measured
	// round trip, per federate.
	ClockSyncRoundTrip *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers every metric against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.FederatesAdmitted,
		c.FederateState,
		c.StateTransitions,
		c.GrantsIssued,
		c.RelayedMessages,
		c.RelayedBytes,
		c.MessagesDropped,
		c.StopGrantedTotal,
		c.StopFinalTag,
		c.ClockSyncRoundTrip,
	)

	return c
}

func newMetrics() *Collector {
	fedLabels := []string{labelFedID}
	relayLabels := []string{labelSrc, labelDst}
	transitionLabels := []string{labelFedID, labelFrom, labelTo}
	stateLabels := []string{labelFedID, "state"}

	return &Collector{
		FederatesAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "federates_admitted_total",
			Help:      "Total federates that completed admission.",
		}, fedLabels),

		FederateState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "federate_state",
			Help:      "1 if the federate currently holds this state, 0 otherwise.",
		}, stateLabels),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total federate state machine transitions.",
		}, transitionLabels),

		GrantsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "grants_issued_total",
			Help:      "Total TIME_ADVANCE_GRANT messages sent.",
		}, fedLabels),

		RelayedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "relayed_messages_total",
			Help:      "Total MESSAGE/TIMED_MESSAGE payloads forwarded between federates.",
		}, relayLabels),

		RelayedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "relayed_bytes_total",
			Help:      "Total payload bytes forwarded between federates.",
		}, relayLabels),

		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped because their destination was disconnected.",
		}, relayLabels),

		StopGrantedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stop_granted_total",
			Help:      "Total STOP_GRANTED broadcasts issued by this process.",
		}),

		StopFinalTag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stop_final_tag_time_ns",
			Help:      "Logical time component of the most recently broadcast STOP_GRANTED tag.",
		}),

		ClockSyncRoundTrip: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "clock_sync_round_trip_seconds",
			Help:      "Observed round trip of a completed clock-sync T1-T4 round, per federate.",
			Buckets:   prometheus.DefBuckets,
		}, fedLabels),
	}
}
