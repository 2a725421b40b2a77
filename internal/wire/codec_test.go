package wire

import (
	"testing"
	"time"

	"github.com/dantte-lp/lf-rti/internal/tag"
)

// TestRoundTripTagMessages exercises (R1): encode/decode of each
// fixed-tag-payload message type is the identity.
func TestRoundTripTagMessages(t *testing.T) {
	tg := tag.New(12345, 7)

	net := EncodeNextEventTag(tg)
	if got := DecodeNextEventTagBody(net[1:]); !got.Equal(tg) {
		t.Errorf("NEXT_EVENT_TAG round trip = %v, want %v", got, tg)
	}
	if net[0] != byte(MsgNextEventTag) {
		t.Errorf("NEXT_EVENT_TAG tag byte = %d, want %d", net[0], MsgNextEventTag)
	}

	ltc := EncodeLogicalTagComplete(tg)
	if got := DecodeLogicalTagCompleteBody(ltc[1:]); !got.Equal(tg) {
		t.Errorf("LOGICAL_TAG_COMPLETE round trip = %v, want %v", got, tg)
	}

	grant := EncodeTimeAdvanceGrant(tg)
	if got := DecodeTimeAdvanceGrantBody(grant[1:]); !got.Equal(tg) {
		t.Errorf("TIME_ADVANCE_GRANT round trip = %v, want %v", got, tg)
	}
}

func TestRoundTripFedID(t *testing.T) {
	want := FedIDPayload{FedID: 3, FederationID: "prod"}
	buf, err := EncodeFedID(want)
	if err != nil {
		t.Fatalf("EncodeFedID: %v", err)
	}
	if MsgType(buf[0]) != MsgFedID {
		t.Fatalf("tag byte = %d, want %d", buf[0], MsgFedID)
	}
	got := DecodeFedIDBody(buf[1:4], buf[4:])
	if got != want {
		t.Errorf("FED_ID round trip = %+v, want %+v", got, want)
	}
}

func TestEncodeFedIDRejectsOversizedName(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'x'
	}
	_, err := EncodeFedID(FedIDPayload{FedID: 0, FederationID: string(long)})
	if err == nil {
		t.Fatal("expected error for oversized federation id")
	}
}

func TestRoundTripStopMessages(t *testing.T) {
	req := EncodeStopRequest(100)
	if got := DecodeStopRequestBody(req[1:]); got != 100 {
		t.Errorf("STOP_REQUEST round trip = %d, want 100", got)
	}
	reply := EncodeStopRequestReply(120)
	if got := DecodeStopRequestReplyBody(reply[1:]); got != 120 {
		t.Errorf("STOP_REQUEST_REPLY round trip = %d, want 120", got)
	}
	granted := EncodeStopGranted(120)
	if got := DecodeStopGrantedBody(granted[1:]); got != 120 {
		t.Errorf("STOP_GRANTED round trip = %d, want 120", got)
	}
}

func TestRoundTripMessageHeader(t *testing.T) {
	h := MessageHeader{Port: 1, Fed: 2, Length: 99}
	buf := EncodeMessageHeader(h)
	if len(buf) != MessageHeaderSize {
		t.Fatalf("MESSAGE header len = %d, want %d", len(buf), MessageHeaderSize)
	}
	got := DecodeMessageHeaderBody(buf[1:])
	if got != h {
		t.Errorf("MESSAGE header round trip = %+v, want %+v", got, h)
	}
}

func TestRoundTripTimedMessageHeader(t *testing.T) {
	h := TimedMessageHeader{MessageHeader: MessageHeader{Port: 1, Fed: 2, Length: 99}, Tag: tag.New(500, 1)}
	buf := EncodeTimedMessageHeader(h)
	if len(buf) != TimedMessageHeaderSize {
		t.Fatalf("TIMED_MESSAGE header len = %d, want %d", len(buf), TimedMessageHeaderSize)
	}
	got := DecodeTimedMessageHeaderBody(buf[1:])
	if got.MessageHeader != h.MessageHeader || !got.Tag.Equal(h.Tag) {
		t.Errorf("TIMED_MESSAGE header round trip = %+v, want %+v", got, h)
	}
}

func TestRoundTripPhysClock(t *testing.T) {
	now := time.Unix(0, 1_700_000_000_000).UTC()
	t1 := EncodePhysClockT1T4(now)
	got := DecodePhysClockT1T4Body(t1[1:])
	if !got.Equal(now) {
		t.Errorf("T1 round trip = %v, want %v", got, now)
	}

	t3 := EncodePhysClockT3(now, 5)
	gotT, gotFed := DecodePhysClockT3Body(t3[1:])
	if !gotT.Equal(now) || gotFed != 5 {
		t.Errorf("T3 round trip = (%v, %d), want (%v, 5)", gotT, gotFed, now)
	}
}

func TestRoundTripUDPPortAndReject(t *testing.T) {
	port := EncodeUDPPort(9020)
	if got := DecodeUDPPortBody(port[1:]); got != 9020 {
		t.Errorf("UDP_PORT round trip = %d, want 9020", got)
	}
	rej := EncodeReject(RejectFederationIDMismatch)
	if got := DecodeRejectBody(rej[1:]); got != RejectFederationIDMismatch {
		t.Errorf("REJECT round trip = %v, want %v", got, RejectFederationIDMismatch)
	}
}

func TestMsgTypeStringFallback(t *testing.T) {
	if got := MsgType(200).String(); got != "MsgType(200)" {
		t.Errorf("unknown MsgType.String() = %q, want MsgType(200)", got)
	}
}
