package federation

import (
	"github.com/dantte-lp/lf-rti/internal/tag"
	"github.com/dantte-lp/lf-rti/internal/wire"
)

// pendingGrant is a TAG this federation has decided to send, computed
// while f.mu was held. The actual socket write happens after the lock is
// released, since no task may hold the federation mutex across a
// socket write of unbounded/unbounded-latency length.
type pendingGrant struct {
	fed *Federate
	tag tag.Tag
}

// transitiveNextEvent implements the depth-bounded, cycle-tolerant graph
// traversal from COMPONENT DESIGN §4.3. It estimates the earliest tag at
// which nodeID might still produce an event, no later than cap, by
// combining the node's own NextEvent with its upstreams' transitive
// bounds shifted by connection delay. visited guards against infinite
// recursion on cyclic graphs; a node already on the current call stack,
// or one that is NotConnected or Stopped, contributes nothing tighter
// than cap.
func transitiveNextEvent(f *Federation, nodeID uint16, cap tag.Tag, visited map[uint16]bool) tag.Tag {
	if visited[nodeID] {
		return cap
	}
	node := f.federates[nodeID]
	if node.State == StateNotConnected || node.State == StateStopped {
		return cap
	}
	visited[nodeID] = true

	result := tag.Min(node.NextEvent, cap)
	for i, u := range node.Upstream {
		upstream := f.federates[u]
		if upstream.State == StateNotConnected || upstream.State == StateStopped {
			continue
		}
		d := node.UpstreamDelay[i]
		uNext := transitiveNextEvent(f, u, cap, visited)
		result = tag.Min(result, uNext.Delay(d))
	}

	if result.IsNever() {
		result = node.Completed
	}
	return result
}

// candidateGrant computes the largest tag it is currently safe to grant
// fedID, per the upstream-safety rule in §4.3, and reports whether a TAG
// should actually be sent (candidate strictly greater than the
// federate's last-granted/completed tag). Caller must hold f.mu.
func (f *Federation) candidateGrant(fedID uint16) (tag.Tag, bool) {
	node := f.federates[fedID]
	candidate := node.NextEvent

	for i, u := range node.Upstream {
		upstream := f.federates[u]
		d := node.UpstreamDelay[i]
		uCompletion := upstream.Completed.Delay(d)

		if uCompletion.Less(candidate) {
			if upstream.State == StateNotConnected || upstream.State == StateStopped {
				continue
			}
			visited := map[uint16]bool{fedID: true}
			uNext := transitiveNextEvent(f, u, candidate, visited)
			if uNext.LessEqual(candidate) {
				candidate = uCompletion
			}
		}
	}

	if candidate.Greater(node.Completed) {
		return candidate, true
	}
	return candidate, false
}

// revisit re-evaluates the grant for each of ids and returns the set of
// TAGs that should be sent. Caller must hold f.mu. It does not itself
// mutate Completed/NextEvent/State -- those mutations happen in the
// On* entry points below, before revisit is called.
func (f *Federation) revisit(ids []uint16) []pendingGrant {
	var grants []pendingGrant
	for _, id := range ids {
		fed := f.federates[id]
		if fed.State != StateGranted {
			continue
		}
		candidate, ok := f.candidateGrant(id)
		if !ok {
			continue
		}
		grants = append(grants, pendingGrant{fed: fed, tag: candidate})
	}
	return grants
}

// OnNextEventTag records a NEXT_EVENT_TAG from fedID and re-evaluates
// only fedID itself -- a NET from v cannot shorten v's own upstreams'
// grants, so downstream federates need no recomputation.
func (f *Federation) OnNextEventTag(fedID uint16, t tag.Tag) []pendingGrant {
	f.mu.Lock()
	defer f.mu.Unlock()

	node := f.federates[fedID]
	node.NextEvent = t

	return f.revisit([]uint16{fedID})
}

// OnLogicalTagComplete records a LOGICAL_TAG_COMPLETE from fedID and
// re-evaluates every downstream of fedID, since their safe grant ceiling
// may now have advanced.
func (f *Federation) OnLogicalTagComplete(fedID uint16, t tag.Tag) []pendingGrant {
	f.mu.Lock()
	defer f.mu.Unlock()

	node := f.federates[fedID]
	node.Completed = tag.Max(node.Completed, t)

	return f.revisit(node.Downstream)
}

// OnFederateDisconnected demotes fedID to NotConnected and re-evaluates
// its downstream neighbors, since a disconnected upstream can no longer
// block their grants. It also records an implicit stop request from
// fedID (§4.5's edge case), which may itself complete the stop quorum --
// the returned stop messages must be sent exactly like the grants, via
// SendStopMessages, or a disconnect that happens to supply the Nth
// requesting federate would silently swallow STOP_GRANTED.
func (f *Federation) OnFederateDisconnected(fedID uint16) ([]pendingGrant, []pendingStopMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	node := f.federates[fedID]
	if node.State == StateStopped {
		return nil, nil
	}
	f.setState(node, StateNotConnected)
	stopMsgs := f.recordImplicitStopRequest(node)

	return f.revisit(node.Downstream), stopMsgs
}

// handleDisconnect runs OnFederateDisconnected and sends every grant and
// stop message it produces. It is the entry point every socket-error
// path in this package should call instead of OnFederateDisconnected
// directly, so a disconnect's consequences are never left unsent.
func (f *Federation) handleDisconnect(fedID uint16) {
	grants, stopMsgs := f.OnFederateDisconnected(fedID)
	f.SendGrants(grants)
	f.SendStopMessages(stopMsgs)
}

// SendGrants writes TIME_ADVANCE_GRANT for each pending grant over its
// federate's TCP session. It must be called without f.mu held. Each
// write is serialized against any other writer of the same
// destination's connection via its sendMu, so a TAG can never interleave
// with a relayed message or a stop-consensus broadcast to the same
// federate. A write failure demotes the target to NotConnected
// (peer-fatal, per §4.3 "Failure semantics") and is reported to the
// caller so the handler loop can tear that federate's session down; it
// does not abort remaining sends.
func (f *Federation) SendGrants(grants []pendingGrant) []error {
	var errs []error
	for _, g := range grants {
		buf := wire.EncodeTimeAdvanceGrant(g.tag)

		g.fed.sendMu.Lock()
		err := wire.WriteFull(g.fed.Conn, buf, f.params.TCPTimeout)
		g.fed.sendMu.Unlock()

		if err != nil {
			errs = append(errs, err)
			f.handleDisconnect(g.fed.ID)
			continue
		}
		f.metrics.GrantIssued(g.fed.ID)
	}
	return errs
}
