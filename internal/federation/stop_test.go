package federation

import (
	"testing"

	"github.com/dantte-lp/lf-rti/internal/tag"
	"github.com/dantte-lp/lf-rti/internal/wire"
)

// TestStopConsensusThreeFederates exercises scenario S4: fed 1 proposes
// stop(100), the RTI forwards STOP_REQUEST to 0 and 2, they reply with
// 120 and 90, and STOP_GRANTED(120) is broadcast exactly once.
func TestStopConsensusThreeFederates(t *testing.T) {
	f := grantedFederation(3, nil)

	forwarded := f.OnStopRequest(1, 100)
	if len(forwarded) != 2 {
		t.Fatalf("expected STOP_REQUEST forwarded to the other 2 federates, got %d", len(forwarded))
	}
	for _, m := range forwarded {
		if m.fed.ID == 1 {
			t.Fatalf("STOP_REQUEST should not be forwarded back to the requester")
		}
		if m.proposed != 100 {
			t.Fatalf("forwarded STOP_REQUEST carries %d, want 100", m.proposed)
		}
	}

	if out := f.OnStopRequestReply(0, 120); out != nil {
		t.Fatalf("expected no STOP_GRANTED yet (1 of 3 replied), got %v", out)
	}
	out := f.OnStopRequestReply(2, 90)
	if len(out) != 3 {
		t.Fatalf("expected STOP_GRANTED broadcast to all 3 federates, got %d", len(out))
	}
	for _, m := range out {
		if m.msgType != wire.MsgStopGranted || m.proposed != 120 {
			t.Fatalf("expected STOP_GRANTED(120), got type=%v proposed=%d", m.msgType, m.proposed)
		}
	}

	// A second reply must never produce a second STOP_GRANTED (P4).
	if out := f.OnStopRequestReply(1, 50); out != nil {
		t.Fatalf("STOP_GRANTED must be latched to at most one broadcast, got %v", out)
	}
}

// TestDisconnectDuringStopCountsAsRequesting exercises the §4.5 edge
// case: a federate that disconnects mid-protocol counts as requesting
// without perturbing max_stop_time.
func TestDisconnectDuringStopCountsAsRequesting(t *testing.T) {
	f := grantedFederation(2, nil)

	f.OnStopRequest(0, 200)
	if f.maxStopTime != 200 {
		t.Fatalf("maxStopTime = %d, want 200", f.maxStopTime)
	}

	f.OnFederateDisconnected(1)
	if !f.federates[1].RequestedStop {
		t.Fatal("disconnected federate should be marked requesting")
	}
	if f.maxStopTime != 200 {
		t.Fatalf("maxStopTime changed on implicit stop request: %d, want 200", f.maxStopTime)
	}
	if f.numRequestingStop != 2 {
		t.Fatalf("numRequestingStop = %d, want 2", f.numRequestingStop)
	}
}

// TestCandidateGrantIgnoresStoppedUpstream confirms a node's revisit
// logic treats an upstream's eventual Stopped/NotConnected states the
// same way for grant purposes once it can no longer emit events --
// a minimal regression guard around state transitions feeding C3.
func TestCandidateGrantIgnoresStoppedUpstream(t *testing.T) {
	f := grantedFederation(2, []Edge{{From: 0, To: 1, Delay: 0}})
	f.federates[1].NextEvent = tag.New(9, 0)
	f.federates[0].State = StateStopped

	candidate, ok := f.candidateGrant(1)
	if !ok || !candidate.Equal(tag.New(9, 0)) {
		t.Fatalf("candidateGrant(1) = (%v, %v), want ((9,0), true)", candidate, ok)
	}
}
