package federation

import "github.com/dantte-lp/lf-rti/internal/tag"

// ProposeStartTime folds fedID's proposed start time into the barrier
// (§4.2 step 5) and blocks the calling handler goroutine until every
// federate has proposed. The caller that completes the barrier (the Nth
// proposal) computes start_time and releases every other waiter without
// blocking itself.
//
// Every caller, including the one that completes the barrier, is
// responsible for writing TIMESTAMP(start_time) to its own connection
// afterward -- this is how "broadcast TIMESTAMP to every federate" is
// achieved without the federation holding every socket centrally.
func (f *Federation) ProposeStartTime(fedID uint16, proposed tag.Time) tag.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	if proposed > f.maxStartTime {
		f.maxStartTime = proposed
	}
	f.numProposedStart++

	if f.numProposedStart == f.n {
		f.startTime = f.maxStartTime + tag.Time(f.params.DelayStart.Nanoseconds())
		f.startTimeSent = true
		for _, fed := range f.federates {
			if fed.State == StatePending {
				f.setState(fed, StateGranted)
			}
		}
		f.receivedStartTimes.Broadcast()
		f.sentStartTime.Broadcast()
		return f.startTime
	}

	f.receivedStartTimes.Broadcast()
	for !f.startTimeSent {
		f.sentStartTime.Wait()
	}
	return f.startTime
}
