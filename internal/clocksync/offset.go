package clocksync

import "time"

// Observation is one federate-side view of a completed T1/T3/T4 round:
// T1 is the RTI's send-time reading; T3 is this federate's own reading
// taken at the moment T1 arrived (the wire format folds the classic PTP
// "T2" into the T3 message, since the federate reports it back in the
// same message it uses to acknowledge T1); T4 and T4Probe are the RTI's
// two readings around sending the T4 pair; LocalT4Recv/LocalProbeRecv
// are this federate's own arrival times for those two messages, used
// only for jitter detection, not for the offset estimate itself.
type Observation struct {
	T1             time.Time
	T3             time.Time
	T4             time.Time
	T4Probe        time.Time
	LocalT4Recv    time.Time
	LocalProbeRecv time.Time
}

// EstimateOffset returns this federate's estimated clock offset from the
// RTI (positive means the federate's clock reads ahead of the RTI's).
//
// Treating the outbound leg (T1 -> T3) and the return leg (T3 -> T4) as
// symmetric, the federate's clock read T3 - T1 ahead of the RTI's over
// the outbound leg, and the RTI's clock read T4 - T3 ahead of the
// federate's over the return leg; averaging the two legs and negating
// the second cancels a symmetric one-way propagation delay and leaves
// the offset.
func EstimateOffset(o Observation) time.Duration {
	outbound := o.T3.Sub(o.T1)
	inbound := o.T4.Sub(o.T3)
	return (outbound - inbound) / 2
}

// EstimateRoundTrip returns the round-trip time observed by the RTI
// across the whole exchange (T1 send to T4 send).
func EstimateRoundTrip(o Observation) time.Duration {
	return o.T4.Sub(o.T1)
}

// JitterDiscardThreshold is the maximum tolerated disagreement between
// the RTI-side and federate-side gap around the T4/T4_CODED_PROBE pair
// before a round is discarded as queuing-jitter-corrupted.
const JitterDiscardThreshold = 2 * time.Millisecond

// ShouldDiscard reports whether o's round should be discarded because
// the RTI-measured gap between T4 and the coded probe disagrees with
// the federate-measured gap between receiving those same two messages
// by more than JitterDiscardThreshold -- evidence that one of the two
// messages queued unexpectedly in transit.
func ShouldDiscard(o Observation) bool {
	rtiGap := o.T4Probe.Sub(o.T4)
	localGap := o.LocalProbeRecv.Sub(o.LocalT4Recv)
	diff := rtiGap - localGap
	if diff < 0 {
		diff = -diff
	}
	return diff > JitterDiscardThreshold
}
