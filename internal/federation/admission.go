package federation

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dantte-lp/lf-rti/internal/clocksync"
	"github.com/dantte-lp/lf-rti/internal/tag"
	"github.com/dantte-lp/lf-rti/internal/wire"
)

// Admit runs one federate's full admission handshake (§4.2) over conn,
// then the start-time barrier wait, then the federate's main message
// loop, blocking until the session ends. It is meant to be the entire
// body of the acceptor's per-connection goroutine.
func (f *Federation) Admit(conn net.Conn) {
	defer conn.Close()

	fedID, ok := f.handshake(conn)
	if !ok {
		return
	}

	logger := f.logger.With(slog.Uint64("fed_id", uint64(fedID)))
	logger.Info("federate admitted, awaiting start time")

	startTime, err := f.awaitTimestampAndBarrier(conn, fedID)
	if err != nil {
		Classify(fedID, err).Log(f.logger)
		f.handleDisconnect(fedID)
		return
	}

	if err := wire.WriteFull(conn, wire.EncodeTimestamp(startTime), f.params.TCPTimeout); err != nil {
		Classify(fedID, err).Log(f.logger)
		f.handleDisconnect(fedID)
		return
	}

	f.metrics.FederateAdmitted(fedID)
	logger.Info("start time sent, federate running", "start_time", startTime)

	f.runSessionLoop(conn, fedID)
}

// handshake performs admission steps 1-4 (FED_ID, federation-name check,
// range/duplicate check, ACK, UDP_PORT + optional in-band clock-sync
// rounds) and, on success, moves fedID to Pending and stores conn. It
// returns ok=false if the connection was rejected or failed; in that
// case conn has already been (or should be) closed by the caller and no
// federate record was touched.
func (f *Federation) handshake(conn net.Conn) (uint16, bool) {
	timeout := f.params.TCPTimeout

	first, err := wire.ReadTag(conn, timeout)
	if err != nil {
		Classify(0, err).Log(f.logger)
		return 0, false
	}
	if first != wire.MsgFedID {
		cause := wire.RejectUnexpectedMessage
		if first == wire.MsgMessage || first == wire.MsgTimedMessage {
			cause = wire.RejectWrongServer
		}
		f.reject(conn, cause)
		return 0, false
	}

	fedID, federationID, err := f.readFedIDBody(conn, timeout)
	if err != nil {
		Classify(0, err).Log(f.logger)
		return 0, false
	}

	if federationID != f.id {
		f.reject(conn, wire.RejectFederationIDMismatch)
		return 0, false
	}
	if int(fedID) >= f.n {
		f.reject(conn, wire.RejectFedIDOutOfRange)
		return 0, false
	}

	f.mu.Lock()
	fed := f.federates[fedID]
	if fed.State != StateNotConnected {
		f.mu.Unlock()
		f.reject(conn, wire.RejectFedIDInUse)
		return 0, false
	}
	f.mu.Unlock()

	if err := wire.WriteFull(conn, wire.EncodeAck(), timeout); err != nil {
		Classify(fedID, err).Log(f.logger)
		return 0, false
	}

	if err := f.negotiateClockSync(conn, fed, timeout); err != nil {
		Classify(fedID, err).Log(f.logger)
		return 0, false
	}

	f.mu.Lock()
	fed.Conn = conn
	f.setState(fed, StatePending)
	f.mu.Unlock()

	return fedID, true
}

// readFedIDBody reads the fixed u16 fed_id + u8 name_len prefix, then
// the variable-length federation name.
func (f *Federation) readFedIDBody(conn net.Conn, timeout time.Duration) (uint16, string, error) {
	prefix := make([]byte, 3)
	if err := wire.ReadFull(conn, prefix, timeout); err != nil {
		return 0, "", err
	}
	nameLen := int(prefix[2])
	name := make([]byte, nameLen)
	if nameLen > 0 {
		if err := wire.ReadFull(conn, name, timeout); err != nil {
			return 0, "", err
		}
	}
	payload := wire.DecodeFedIDBody(prefix[0:2], name)
	return payload.FedID, payload.FederationID, nil
}

// reject sends REJECT(cause) best-effort; the connection is closed by
// Admit's deferred Close regardless of whether the write succeeds.
func (f *Federation) reject(conn net.Conn, cause wire.RejectCause) {
	_ = wire.WriteFull(conn, wire.EncodeReject(cause), f.params.TCPTimeout)
	f.logger.Info("rejected incoming connection", "cause", cause.String())
}

// negotiateClockSync reads the federate's UDP_PORT and, unless it is 0,
// records the federate's UDP address and runs the fixed number of
// in-band TCP clock-sync rounds to seed its initial offset.
func (f *Federation) negotiateClockSync(conn net.Conn, fed *Federate, timeout time.Duration) error {
	if _, err := wire.ReadTag(conn, timeout); err != nil {
		return err
	}
	body := make([]byte, 2)
	if err := wire.ReadFull(conn, body, timeout); err != nil {
		return err
	}
	port := wire.DecodeUDPPortBody(body)

	f.mu.Lock()
	fed.ClockSyncEnabled = port != 0
	if fed.ClockSyncEnabled {
		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		fed.UDPAddr = &net.UDPAddr{IP: net.ParseIP(host), Port: int(port)}
	}
	f.mu.Unlock()

	if !fed.ClockSyncEnabled {
		return nil
	}
	return clocksync.RunAdmissionRounds(conn, timeout, f.params.ClockSyncT4MessagesPerInterval, fed.ID, f.logger)
}

// awaitTimestampAndBarrier reads the federate's proposed start time and
// blocks (via ProposeStartTime) until the start-time barrier releases.
func (f *Federation) awaitTimestampAndBarrier(conn net.Conn, fedID uint16) (tag.Time, error) {
	t, err := wire.ReadTag(conn, f.params.TCPTimeout)
	if err != nil {
		return 0, err
	}
	if t != wire.MsgTimestamp {
		return 0, fmt.Errorf("expected TIMESTAMP, got %s: %w", t, ErrUnexpectedMessage)
	}
	body := make([]byte, 8)
	if err := wire.ReadFull(conn, body, f.params.TCPTimeout); err != nil {
		return 0, err
	}
	proposed := wire.DecodeTimestampBody(body)

	return f.ProposeStartTime(fedID, proposed), nil
}
