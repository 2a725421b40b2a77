// Package wire implements the fixed little-endian framing and message
// encoding shared by the RTI and the federate client.
//
// Every message on the wire is a single tag byte followed by a
// fixed-layout payload (variable-length payloads carry an explicit
// length prefix). All multi-byte integers are little-endian regardless
// of host byte order; the byte order is swapped only at the socket
// boundary, never carried through in-memory state.
package wire

import "fmt"

// MsgType identifies the first byte of every message on the wire.
type MsgType byte

// Message tag values, fixed by the wire format.
const (
	MsgFedID             MsgType = 1
	MsgTimestamp         MsgType = 2
	MsgAck               MsgType = 3
	MsgUDPPort           MsgType = 4
	MsgReject            MsgType = 5
	MsgAddressQuery      MsgType = 6
	MsgAddressAd         MsgType = 7
	MsgMessage           MsgType = 8
	MsgTimedMessage      MsgType = 9
	MsgNextEventTag      MsgType = 10
	MsgLogicalTagComplete MsgType = 11
	MsgTimeAdvanceGrant  MsgType = 12
	MsgStopRequest       MsgType = 13
	MsgStopRequestReply  MsgType = 14
	MsgStopGranted       MsgType = 15
	MsgResign            MsgType = 16
	MsgPhysClock         MsgType = 17
)

var msgTypeNames = [...]string{
	MsgFedID:              "FED_ID",
	MsgTimestamp:          "TIMESTAMP",
	MsgAck:                "ACK",
	MsgUDPPort:            "UDP_PORT",
	MsgReject:             "REJECT",
	MsgAddressQuery:       "ADDRESS_QUERY",
	MsgAddressAd:          "ADDRESS_AD",
	MsgMessage:            "MESSAGE",
	MsgTimedMessage:       "TIMED_MESSAGE",
	MsgNextEventTag:       "NEXT_EVENT_TAG",
	MsgLogicalTagComplete: "LOGICAL_TAG_COMPLETE",
	MsgTimeAdvanceGrant:   "TIME_ADVANCE_GRANT",
	MsgStopRequest:        "STOP_REQUEST",
	MsgStopRequestReply:   "STOP_REQUEST_REPLY",
	MsgStopGranted:        "STOP_GRANTED",
	MsgResign:             "RESIGN",
	MsgPhysClock:          "PHYS_CLOCK",
}

// unknownMsgTypeFmt is the fallback format for an out-of-range MsgType.
const unknownMsgTypeFmt = "MsgType(%d)"

// String renders the message type's name, or a numeric fallback for an
// unrecognized tag byte.
func (m MsgType) String() string {
	if int(m) < len(msgTypeNames) && msgTypeNames[m] != "" {
		return msgTypeNames[m]
	}
	return fmt.Sprintf(unknownMsgTypeFmt, byte(m))
}

// PhysClockKind distinguishes the four PHYS_CLOCK sub-messages, which all
// share tag 17 on the wire and are otherwise told apart by context within
// the clock-sync round (T1 from the RTI, T3 from the federate, T4 and the
// coded probe from the RTI).
type PhysClockKind byte

// Clock-sync round sub-kinds.
const (
	PhysClockT1 PhysClockKind = iota
	PhysClockT3
	PhysClockT4
	PhysClockT4CodedProbe
)

// RejectCause enumerates the REJECT payload's single cause byte.
type RejectCause byte

// Admission rejection causes.
const (
	RejectFederationIDMismatch RejectCause = iota
	RejectFedIDOutOfRange
	RejectFedIDInUse
	RejectUnexpectedMessage
	RejectWrongServer
)

var rejectCauseNames = [...]string{
	RejectFederationIDMismatch: "FederationIdMismatch",
	RejectFedIDOutOfRange:      "FedIdOutOfRange",
	RejectFedIDInUse:           "FedIdInUse",
	RejectUnexpectedMessage:    "UnexpectedMessage",
	RejectWrongServer:          "WrongServer",
}

// unknownCauseFmt is the fallback format for an out-of-range RejectCause.
const unknownCauseFmt = "RejectCause(%d)"

// String renders the cause's name, or a numeric fallback.
func (c RejectCause) String() string {
	if int(c) < len(rejectCauseNames) && rejectCauseNames[c] != "" {
		return rejectCauseNames[c]
	}
	return fmt.Sprintf(unknownCauseFmt, byte(c))
}

// Fixed header sizes: the MESSAGE header is tag(1) + port(2) + fed(2) +
// len(4) = 9 bytes; TIMED_MESSAGE appends tag_time(8) + tag_microstep(4).
const (
	MessageHeaderSize      = 1 + 2 + 2 + 4
	TimedMessageHeaderSize = MessageHeaderSize + 8 + 4
)

// MaxFederationIDLen is the largest encodable federation id, bounded by
// the single-byte length prefix on the wire.
const MaxFederationIDLen = 255
