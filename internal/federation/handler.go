package federation

import (
	"errors"
	"net"
	"time"

	"github.com/dantte-lp/lf-rti/internal/clocksync"
	"github.com/dantte-lp/lf-rti/internal/tag"
	"github.com/dantte-lp/lf-rti/internal/wire"
)

// runSessionLoop reads and dispatches messages from fedID's session until
// the connection closes, RESIGN arrives, or an unrecognized tag byte
// makes the session peer-fatal, per §4.1/§7. It is the body of the
// per-federate handler task that Admit spawns implicitly by running in
// its own goroutine.
func (f *Federation) runSessionLoop(conn net.Conn, fedID uint16) {
	timeout := f.params.TCPTimeout

	for {
		t, err := wire.ReadTag(conn, timeout)
		if errors.Is(err, wire.ErrTimeout) {
			// An idle federate is not an error: keep waiting for its
			// next message.
			continue
		}
		if err != nil {
			Classify(fedID, err).Log(f.logger)
			f.handleDisconnect(fedID)
			return
		}

		switch t {
		case wire.MsgNextEventTag:
			tg, err := f.readTagBody(conn, timeout)
			if err != nil {
				Classify(fedID, err).Log(f.logger)
				f.handleDisconnect(fedID)
				return
			}
			f.SendGrants(f.OnNextEventTag(fedID, tg))

		case wire.MsgLogicalTagComplete:
			tg, err := f.readTagBody(conn, timeout)
			if err != nil {
				Classify(fedID, err).Log(f.logger)
				f.handleDisconnect(fedID)
				return
			}
			f.SendGrants(f.OnLogicalTagComplete(fedID, tg))

		case wire.MsgMessage, wire.MsgTimedMessage:
			if !f.relayOne(conn, fedID, t, timeout) {
				return
			}

		case wire.MsgStopRequest:
			proposed, err := f.readStopTime(conn, timeout)
			if err != nil {
				Classify(fedID, err).Log(f.logger)
				f.handleDisconnect(fedID)
				return
			}
			f.SendStopMessages(f.OnStopRequest(fedID, proposed))

		case wire.MsgStopRequestReply:
			proposed, err := f.readStopTime(conn, timeout)
			if err != nil {
				Classify(fedID, err).Log(f.logger)
				f.handleDisconnect(fedID)
				return
			}
			f.SendStopMessages(f.OnStopRequestReply(fedID, proposed))

		case wire.MsgAddressQuery:
			if !f.handleAddressQuery(conn, fedID, timeout) {
				return
			}

		case wire.MsgAddressAd:
			if !f.handleAddressAd(conn, fedID, timeout) {
				return
			}

		case wire.MsgResign:
			f.logger.Info("federate resigned", "fed_id", fedID)
			f.onResign(fedID)
			return

		default:
			Classify(fedID, ErrUnknownMessageType).Log(f.logger)
			f.handleDisconnect(fedID)
			return
		}
	}
}

// readTagBody reads the shared 12-byte (time, microstep) body used by
// NEXT_EVENT_TAG and LOGICAL_TAG_COMPLETE.
func (f *Federation) readTagBody(conn net.Conn, timeout time.Duration) (tag.Tag, error) {
	body := make([]byte, 12)
	if err := wire.ReadFull(conn, body, timeout); err != nil {
		return tag.Tag{}, err
	}
	return wire.DecodeNextEventTagBody(body), nil
}

// readStopTime reads the shared 8-byte time body used by STOP_REQUEST
// and STOP_REQUEST_REPLY.
func (f *Federation) readStopTime(conn net.Conn, timeout time.Duration) (tag.Time, error) {
	body := make([]byte, 8)
	if err := wire.ReadFull(conn, body, timeout); err != nil {
		return 0, err
	}
	return wire.DecodeStopRequestBody(body), nil
}

// relayOne reads one MESSAGE or TIMED_MESSAGE header and hands the
// payload off to RelayMessage. It returns false if the session should
// end (a read error on src's own socket, not a relay failure, which
// RelayMessage already handles internally).
func (f *Federation) relayOne(conn net.Conn, fedID uint16, t wire.MsgType, timeout time.Duration) bool {
	var header wire.MessageHeader
	var headerBytes []byte

	if t == wire.MsgMessage {
		body := make([]byte, wire.MessageHeaderSize-1)
		if err := wire.ReadFull(conn, body, timeout); err != nil {
			Classify(fedID, err).Log(f.logger)
			f.handleDisconnect(fedID)
			return false
		}
		header = wire.DecodeMessageHeaderBody(body)
		headerBytes = wire.EncodeMessageHeader(header)
	} else {
		body := make([]byte, wire.TimedMessageHeaderSize-1)
		if err := wire.ReadFull(conn, body, timeout); err != nil {
			Classify(fedID, err).Log(f.logger)
			f.handleDisconnect(fedID)
			return false
		}
		th := wire.DecodeTimedMessageHeaderBody(body)
		header = th.MessageHeader
		headerBytes = wire.EncodeTimedMessageHeader(th)
	}

	if err := f.RelayMessage(fedID, header, headerBytes, header.Length, conn, t == wire.MsgTimedMessage); err != nil {
		Classify(fedID, err).Log(f.logger)
		f.handleDisconnect(fedID)
		return false
	}
	return true
}

// handleAddressQuery replies to fedID with the advertised peer-to-peer
// listener address of the federate it asked about.
func (f *Federation) handleAddressQuery(conn net.Conn, fedID uint16, timeout time.Duration) bool {
	body := make([]byte, 2)
	if err := wire.ReadFull(conn, body, timeout); err != nil {
		Classify(fedID, err).Log(f.logger)
		f.handleDisconnect(fedID)
		return false
	}
	target := wire.DecodeAddressQueryBody(body)

	f.mu.Lock()
	var port int32 = -1
	if int(target) < len(f.federates) {
		port = f.federates[target].ServerPort
	}
	self := f.federates[fedID]
	f.mu.Unlock()

	// self.sendMu serializes this reply against any TAG/STOP broadcast
	// or relayed message another handler goroutine concurrently writes
	// to fedID's own connection.
	self.sendMu.Lock()
	err := wire.WriteFull(conn, wire.EncodeAddressAd(port), timeout)
	self.sendMu.Unlock()

	if err != nil {
		Classify(fedID, err).Log(f.logger)
		f.handleDisconnect(fedID)
		return false
	}
	return true
}

// handleAddressAd records fedID's own advertised peer-to-peer listener
// port and IP (taken from its RTI-facing connection's remote address).
func (f *Federation) handleAddressAd(conn net.Conn, fedID uint16, timeout time.Duration) bool {
	body := make([]byte, 4)
	if err := wire.ReadFull(conn, body, timeout); err != nil {
		Classify(fedID, err).Log(f.logger)
		f.handleDisconnect(fedID)
		return false
	}
	port := wire.DecodeAddressAdBody(body)
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	f.mu.Lock()
	node := f.federates[fedID]
	node.ServerPort = port
	node.ServerIP = host
	f.mu.Unlock()
	return true
}

// onResign transitions fedID straight to Stopped -- a graceful exit, not
// a peer-fatal loss -- and re-evaluates its downstream neighbors exactly
// as OnFederateDisconnected would, since a resigned federate can no
// longer block anyone's grant either. Like OnFederateDisconnected, the
// implicit stop request it records may itself complete the stop
// quorum, so its stop messages must be sent alongside the grants.
func (f *Federation) onResign(fedID uint16) {
	f.mu.Lock()
	node := f.federates[fedID]
	if node.State == StateStopped {
		f.mu.Unlock()
		return
	}
	f.setState(node, StateStopped)
	stopMsgs := f.recordImplicitStopRequest(node)
	grants := f.revisit(node.Downstream)
	f.mu.Unlock()

	f.SendGrants(grants)
	f.SendStopMessages(stopMsgs)
}

// ClockSyncTargets implements clocksync.TargetLister: the current set of
// connected, clock-sync-enabled federates' UDP endpoints.
func (f *Federation) ClockSyncTargets() []clocksync.Target {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []clocksync.Target
	for _, fed := range f.federates {
		if fed.State == StateNotConnected || fed.State == StateStopped || !fed.ClockSyncEnabled || fed.UDPAddr == nil {
			continue
		}
		out = append(out, clocksync.Target{FedID: fed.ID, Addr: fed.UDPAddr})
	}
	return out
}
