package federation

import (
	"github.com/dantte-lp/lf-rti/internal/tag"
	"github.com/dantte-lp/lf-rti/internal/wire"
)

// pendingStopMessage is a STOP_REQUEST/STOP_GRANTED this federation has
// decided to send, computed while f.mu was held; sent after release,
// same discipline as pendingGrant.
type pendingStopMessage struct {
	fed      *Federate
	msgType  wire.MsgType
	proposed tag.Time
}

// recordImplicitStopRequest marks fed as requesting stop without
// touching maxStopTime, per §4.5's edge case: "A federate that
// disconnects while the protocol is in-flight is marked requesting
// without contributing to max_stop_time, which preserves progress."
// Caller must hold f.mu. It may return a STOP_GRANTED broadcast, exactly
// as markRequestingStop does, if this is the federate whose marking
// completes the quorum.
func (f *Federation) recordImplicitStopRequest(fed *Federate) []pendingStopMessage {
	return f.markRequestingStop(fed)
}

// markRequestingStop flips fed.RequestedStop from false to true and
// advances the requesting counter. It is idempotent: a federate already
// marked requesting contributes to the counter only once, per the
// monotonic false->true invariant on RequestedStop.
//
// Per §4.5, reaching the quorum of N requesting federates must broadcast
// STOP_GRANTED regardless of which path (STOP_REQUEST, STOP_REQUEST_REPLY,
// or an implicit mark from a disconnect/resign) supplied the Nth one --
// this is the single choke point all of those paths funnel through so
// none of them can silently complete the quorum without emitting the
// broadcast. Caller must hold f.mu.
func (f *Federation) markRequestingStop(fed *Federate) []pendingStopMessage {
	if fed.RequestedStop {
		return nil
	}
	fed.RequestedStop = true
	f.numRequestingStop++
	return f.maybeGrantStop()
}

// maybeGrantStop builds the STOP_GRANTED broadcast once numRequestingStop
// reaches N, latched by stopGrantedAlreadySent so it fires at most once
// (P4). Caller must hold f.mu.
func (f *Federation) maybeGrantStop() []pendingStopMessage {
	if f.numRequestingStop < f.n || f.stopGrantedAlreadySent {
		return nil
	}
	f.stopGrantedAlreadySent = true

	var out []pendingStopMessage
	for _, fed := range f.federates {
		if fed.State == StateNotConnected || fed.State == StateStopped {
			continue
		}
		out = append(out, pendingStopMessage{fed: fed, msgType: wire.MsgStopGranted, proposed: f.maxStopTime})
	}
	f.metrics.StopGranted(int64(f.maxStopTime))
	return out
}

// OnStopRequest handles Phase A of stop consensus (§4.5): a federate
// proposes a stop tag. The RTI folds it into maxStopTime, marks the
// sender requesting, and forwards STOP_REQUEST to every other
// not-yet-requesting federate. A federate that is already disconnected
// or stopped cannot reply, so it is marked requesting implicitly instead
// of being sent anything, per "Disconnected federates are counted as
// implicitly requesting."
func (f *Federation) OnStopRequest(fedID uint16, proposed tag.Time) []pendingStopMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	sender := f.federates[fedID]
	f.maxStopTime = tag.Max(f.maxStopTime, tag.New(proposed, 0)).Time
	out := f.markRequestingStop(sender)

	for _, fed := range f.federates {
		if fed.ID == fedID || fed.RequestedStop {
			continue
		}
		if fed.State == StateNotConnected || fed.State == StateStopped {
			out = append(out, f.markRequestingStop(fed)...)
			continue
		}
		out = append(out, pendingStopMessage{fed: fed, msgType: wire.MsgStopRequest, proposed: f.maxStopTime})
	}
	return out
}

// OnStopRequestReply handles Phase B of stop consensus (§4.5): a
// federate replies with its preferred stop tag. The RTI again folds the
// value into maxStopTime and marks the sender requesting; markRequestingStop
// itself returns the STOP_GRANTED broadcast once every federate is
// requesting.
func (f *Federation) OnStopRequestReply(fedID uint16, proposed tag.Time) []pendingStopMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	sender := f.federates[fedID]
	f.maxStopTime = tag.Max(f.maxStopTime, tag.New(proposed, 0)).Time
	return f.markRequestingStop(sender)
}

// SendStopMessages writes each queued STOP_REQUEST/STOP_GRANTED message.
// Must be called without f.mu held, matching SendGrants. Each write is
// serialized against any other writer of the same destination's
// connection via its sendMu.
func (f *Federation) SendStopMessages(msgs []pendingStopMessage) []error {
	var errs []error
	for _, m := range msgs {
		var buf []byte
		switch m.msgType {
		case wire.MsgStopRequest:
			buf = wire.EncodeStopRequest(m.proposed)
		case wire.MsgStopGranted:
			buf = wire.EncodeStopGranted(m.proposed)
		default:
			continue
		}

		m.fed.sendMu.Lock()
		err := wire.WriteFull(m.fed.Conn, buf, f.params.TCPTimeout)
		m.fed.sendMu.Unlock()

		if err != nil {
			errs = append(errs, err)
			f.handleDisconnect(m.fed.ID)
		}
	}
	return errs
}
