package federation

import (
	"net"
	"testing"
	"time"

	"github.com/dantte-lp/lf-rti/internal/wire"
)

// TestRelayMessageDropsToDisconnectedFederate exercises scenario S5: a
// MESSAGE addressed to a federate that has already disconnected is
// dropped, and the source's stream is left exactly where its next frame
// begins (the payload is discarded, not left dangling).
func TestRelayMessageDropsToDisconnectedFederate(t *testing.T) {
	f := grantedFederation(2, nil)
	f.federates[1].State = StateNotConnected

	srcSide, payloadSide := net.Pipe()
	defer srcSide.Close()
	defer payloadSide.Close()

	payload := []byte("hello-federate")
	header := wire.MessageHeader{Port: 0, Fed: 1, Length: uint32(len(payload))}
	headerBytes := wire.EncodeMessageHeader(header)

	go func() {
		_ = wire.WriteFull(payloadSide, payload, time.Second)
	}()

	if err := f.RelayMessage(0, header, headerBytes, header.Length, srcSide, false); err != nil {
		t.Fatalf("RelayMessage: %v", err)
	}
}

// TestRelayMessageForwardsToConnectedFederate confirms a live
// destination receives the header and payload verbatim.
func TestRelayMessageForwardsToConnectedFederate(t *testing.T) {
	f := grantedFederation(2, nil)

	srcSide, srcFeed := net.Pipe()
	defer srcSide.Close()
	defer srcFeed.Close()
	dstSide, dstSink := net.Pipe()
	defer dstSide.Close()
	defer dstSink.Close()
	f.federates[1].Conn = dstSide

	payload := []byte("payload-bytes")
	header := wire.MessageHeader{Port: 0, Fed: 1, Length: uint32(len(payload))}
	headerBytes := wire.EncodeMessageHeader(header)

	go func() {
		_ = wire.WriteFull(srcFeed, payload, time.Second)
	}()

	recvd := make(chan []byte, 1)
	go func() {
		buf := make([]byte, wire.MessageHeaderSize+len(payload))
		_ = wire.ReadFull(dstSink, buf, time.Second)
		recvd <- buf
	}()

	if err := f.RelayMessage(0, header, headerBytes, header.Length, srcSide, false); err != nil {
		t.Fatalf("RelayMessage: %v", err)
	}

	got := <-recvd
	if string(got[wire.MessageHeaderSize:]) != string(payload) {
		t.Fatalf("relayed payload = %q, want %q", got[wire.MessageHeaderSize:], payload)
	}
}
