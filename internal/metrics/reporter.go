package rtimetrics

import (
	"strconv"
	"time"

	"github.com/dantte-lp/lf-rti/internal/federation"
)

// The methods below satisfy federation.MetricsReporter and
// clocksync.SampleRecorder by structural typing -- this package imports
// federation only for State's String() method and is not imported back,
// so there is no cycle; clocksync is never imported here at all.

// FederateAdmitted implements federation.MetricsReporter.
func (c *Collector) FederateAdmitted(fedID uint16) {
	c.FederatesAdmitted.WithLabelValues(fedIDLabel(fedID)).Inc()
}

// FederateStateChanged implements federation.MetricsReporter.
func (c *Collector) FederateStateChanged(fedID uint16, from, to federation.State) {
	id := fedIDLabel(fedID)
	c.StateTransitions.WithLabelValues(id, from.String(), to.String()).Inc()
	c.FederateState.WithLabelValues(id, from.String()).Set(0)
	c.FederateState.WithLabelValues(id, to.String()).Set(1)
}

// GrantIssued implements federation.MetricsReporter.
func (c *Collector) GrantIssued(fedID uint16) {
	c.GrantsIssued.WithLabelValues(fedIDLabel(fedID)).Inc()
}

// RelayedMessage implements federation.MetricsReporter.
func (c *Collector) RelayedMessage(srcFedID, dstFedID uint16, bytes int, _ bool) {
	src, dst := fedIDLabel(srcFedID), fedIDLabel(dstFedID)
	c.RelayedMessages.WithLabelValues(src, dst).Inc()
	c.RelayedBytes.WithLabelValues(src, dst).Add(float64(bytes))
}

// MessageDropped implements federation.MetricsReporter.
func (c *Collector) MessageDropped(srcFedID, dstFedID uint16) {
	c.MessagesDropped.WithLabelValues(fedIDLabel(srcFedID), fedIDLabel(dstFedID)).Inc()
}

// StopGranted implements federation.MetricsReporter.
func (c *Collector) StopGranted(finalStopTime int64) {
	c.StopGrantedTotal.Inc()
	c.StopFinalTag.Set(float64(finalStopTime))
}

// ClockSyncSample implements clocksync.SampleRecorder.
func (c *Collector) ClockSyncSample(fedID uint16, roundTrip time.Duration) {
	c.ClockSyncRoundTrip.WithLabelValues(fedIDLabel(fedID)).Observe(roundTrip.Seconds())
}

func fedIDLabel(fedID uint16) string {
	return strconv.FormatUint(uint64(fedID), 10)
}
