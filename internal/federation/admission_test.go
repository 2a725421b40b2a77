package federation

import (
	"net"
	"testing"
	"time"

	"github.com/dantte-lp/lf-rti/internal/wire"
)

// TestHandshakeRejectsFederationIDMismatch exercises scenario S6: a
// federate presenting a federation name that does not match this
// federation's own is rejected without ever touching federate state.
func TestHandshakeRejectsFederationIDMismatch(t *testing.T) {
	f := New(testLogger(), "expected-name", 2, nil)

	clientSide, rtiSide := net.Pipe()
	defer clientSide.Close()
	defer rtiSide.Close()

	go func() {
		buf, err := wire.EncodeFedID(wire.FedIDPayload{FedID: 0, FederationID: "wrong-name"})
		if err != nil {
			return
		}
		_ = wire.WriteFull(clientSide, buf, time.Second)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := f.handshake(rtiSide)
		if ok {
			t.Error("handshake should reject a federation id mismatch")
		}
	}()

	tg, err := wire.ReadTag(clientSide, time.Second)
	if err != nil {
		t.Fatalf("ReadTag: %v", err)
	}
	if tg != wire.MsgReject {
		t.Fatalf("expected REJECT, got %s", tg)
	}
	body := make([]byte, 1)
	if err := wire.ReadFull(clientSide, body, time.Second); err != nil {
		t.Fatalf("ReadFull(cause): %v", err)
	}
	if cause := wire.RejectCause(body[0]); cause != wire.RejectFederationIDMismatch {
		t.Fatalf("cause = %s, want %s", cause, wire.RejectFederationIDMismatch)
	}
	<-done

	if f.federates[0].State != StateNotConnected {
		t.Fatalf("rejected federate's state changed to %v", f.federates[0].State)
	}
}

// TestHandshakeRejectsFedIDOutOfRange confirms a fed_id beyond the
// configured federation size is rejected rather than panicking on an
// out-of-bounds federate lookup.
func TestHandshakeRejectsFedIDOutOfRange(t *testing.T) {
	f := New(testLogger(), "fed", 2, nil)

	clientSide, rtiSide := net.Pipe()
	defer clientSide.Close()
	defer rtiSide.Close()

	go func() {
		buf, err := wire.EncodeFedID(wire.FedIDPayload{FedID: 9, FederationID: "fed"})
		if err != nil {
			return
		}
		_ = wire.WriteFull(clientSide, buf, time.Second)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := f.handshake(rtiSide)
		if ok {
			t.Error("handshake should reject an out-of-range fed_id")
		}
	}()

	tg, err := wire.ReadTag(clientSide, time.Second)
	if err != nil {
		t.Fatalf("ReadTag: %v", err)
	}
	if tg != wire.MsgReject {
		t.Fatalf("expected REJECT, got %s", tg)
	}
	body := make([]byte, 1)
	if err := wire.ReadFull(clientSide, body, time.Second); err != nil {
		t.Fatalf("ReadFull(cause): %v", err)
	}
	if cause := wire.RejectCause(body[0]); cause != wire.RejectFedIDOutOfRange {
		t.Fatalf("cause = %s, want %s", cause, wire.RejectFedIDOutOfRange)
	}
	<-done
}
