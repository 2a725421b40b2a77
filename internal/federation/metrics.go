package federation

import "time"

// MetricsReporter receives the federation's observable events. The
// Federation never reports metrics inline on the hot path without this
// interface so unit tests can run without a Prometheus registry; the
// production implementation lives in package rtimetrics (internal/metrics).
//
// A nil MetricsReporter is never stored — New defaults to
// noopMetrics{} so every call site can report unconditionally instead of
// checking for nil first.
type MetricsReporter interface {
	// FederateAdmitted is called when a federate completes admission
	// and its start time (TIMESTAMP) has been sent to it.
	FederateAdmitted(fedID uint16)
	// FederateStateChanged is called on every State transition.
	FederateStateChanged(fedID uint16, from, to State)
	// GrantIssued is called each time a TIME_ADVANCE_GRANT is sent.
	GrantIssued(fedID uint16)
	// RelayedMessage is called after a MESSAGE/TIMED_MESSAGE is fully
	// forwarded, with the payload size in bytes.
	RelayedMessage(srcFedID, dstFedID uint16, bytes int, timed bool)
	// MessageDropped is called when a relay target is NotConnected.
	MessageDropped(srcFedID, dstFedID uint16)
	// StopGranted is called exactly once, when STOP_GRANTED is
	// broadcast.
	StopGranted(finalStopTime int64)
	// ClockSyncSample records one completed T1-T4 round's observed
	// round-trip for a federate.
	ClockSyncSample(fedID uint16, roundTrip time.Duration)
}

// noopMetrics discards every event. It is the Federation's default
// MetricsReporter so production code never has to nil-check.
type noopMetrics struct{}

func (noopMetrics) FederateAdmitted(uint16)                       {}
func (noopMetrics) FederateStateChanged(uint16, State, State)     {}
func (noopMetrics) GrantIssued(uint16)                             {}
func (noopMetrics) RelayedMessage(uint16, uint16, int, bool)       {}
func (noopMetrics) MessageDropped(uint16, uint16)                  {}
func (noopMetrics) StopGranted(int64)                              {}
func (noopMetrics) ClockSyncSample(uint16, time.Duration)          {}
