package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dantte-lp/lf-rti/internal/tag"
)

// Validation/decode errors raised by the per-message decoders below.
var (
	// ErrFederationIDTooLong indicates a federation id exceeds the
	// single-byte length prefix's range.
	ErrFederationIDTooLong = errors.New("wire: federation id exceeds 255 bytes")
	// ErrUnknownMessageType indicates a tag byte this codec does not
	// recognize; per the error-handling design this is peer-fatal.
	ErrUnknownMessageType = errors.New("wire: unknown message type")
)

// FedIDPayload is the payload of a FED_ID message.
type FedIDPayload struct {
	FedID         uint16
	FederationID  string
}

// EncodeFedID returns an encoded FED_ID message (tag + payload), or an
// error if the federation id is longer than MaxFederationIDLen.
func EncodeFedID(p FedIDPayload) ([]byte, error) {
	if len(p.FederationID) > MaxFederationIDLen {
		return nil, fmt.Errorf("encode FED_ID: %w", ErrFederationIDTooLong)
	}
	buf := make([]byte, 1+2+1+len(p.FederationID))
	buf[0] = byte(MsgFedID)
	binary.LittleEndian.PutUint16(buf[1:3], p.FedID)
	buf[3] = byte(len(p.FederationID))
	copy(buf[4:], p.FederationID)
	return buf, nil
}

// DecodeFedIDBody decodes the FED_ID payload after the tag byte has
// already been consumed; prefix holds the fixed u16+u8 fields and name
// the variable-length name bytes the caller has already read.
func DecodeFedIDBody(prefix []byte, name []byte) FedIDPayload {
	return FedIDPayload{
		FedID:        binary.LittleEndian.Uint16(prefix[0:2]),
		FederationID: string(name),
	}
}

// EncodeTimestamp writes a TIMESTAMP message carrying t nanoseconds.
func EncodeTimestamp(t tag.Time) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(MsgTimestamp)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(t))
	return buf
}

// DecodeTimestampBody decodes an 8-byte TIMESTAMP payload.
func DecodeTimestampBody(body []byte) tag.Time {
	return tag.Time(binary.LittleEndian.Uint64(body))
}

// EncodeAck writes an ACK message (empty payload).
func EncodeAck() []byte { return []byte{byte(MsgAck)} }

// EncodeUDPPort writes a UDP_PORT message. Port 0 disables clock sync.
func EncodeUDPPort(port uint16) []byte {
	buf := make([]byte, 1+2)
	buf[0] = byte(MsgUDPPort)
	binary.LittleEndian.PutUint16(buf[1:3], port)
	return buf
}

// DecodeUDPPortBody decodes a 2-byte UDP_PORT payload.
func DecodeUDPPortBody(body []byte) uint16 {
	return binary.LittleEndian.Uint16(body)
}

// EncodeReject writes a REJECT message with the given cause.
func EncodeReject(cause RejectCause) []byte {
	return []byte{byte(MsgReject), byte(cause)}
}

// DecodeRejectBody decodes a 1-byte REJECT payload.
func DecodeRejectBody(body []byte) RejectCause {
	return RejectCause(body[0])
}

// EncodeAddressQuery writes an ADDRESS_QUERY message for fedID.
func EncodeAddressQuery(fedID uint16) []byte {
	buf := make([]byte, 1+2)
	buf[0] = byte(MsgAddressQuery)
	binary.LittleEndian.PutUint16(buf[1:3], fedID)
	return buf
}

// DecodeAddressQueryBody decodes a 2-byte ADDRESS_QUERY payload.
func DecodeAddressQueryBody(body []byte) uint16 {
	return binary.LittleEndian.Uint16(body)
}

// EncodeAddressAd writes an ADDRESS_AD message carrying a listen port.
// A negative port signals "not yet advertised."
func EncodeAddressAd(listenPort int32) []byte {
	buf := make([]byte, 1+4)
	buf[0] = byte(MsgAddressAd)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(listenPort))
	return buf
}

// DecodeAddressAdBody decodes a 4-byte ADDRESS_AD payload.
func DecodeAddressAdBody(body []byte) int32 {
	return int32(binary.LittleEndian.Uint32(body))
}

// MessageHeader is the fixed prefix shared by MESSAGE and TIMED_MESSAGE,
// decoded once so the relay can decide where to route the payload before
// it has read a single byte of the payload itself.
type MessageHeader struct {
	Port   uint16
	Fed    uint16
	Length uint32
}

// EncodeMessageHeader writes the MESSAGE header (tag 8).
func EncodeMessageHeader(h MessageHeader) []byte {
	buf := make([]byte, MessageHeaderSize)
	buf[0] = byte(MsgMessage)
	binary.LittleEndian.PutUint16(buf[1:3], h.Port)
	binary.LittleEndian.PutUint16(buf[3:5], h.Fed)
	binary.LittleEndian.PutUint32(buf[5:9], h.Length)
	return buf
}

// DecodeMessageHeaderBody decodes the 8-byte body following the MESSAGE
// tag byte (port, fed, len).
func DecodeMessageHeaderBody(body []byte) MessageHeader {
	return MessageHeader{
		Port:   binary.LittleEndian.Uint16(body[0:2]),
		Fed:    binary.LittleEndian.Uint16(body[2:4]),
		Length: binary.LittleEndian.Uint32(body[4:8]),
	}
}

// TimedMessageHeader is MessageHeader plus the tag the message is
// scheduled for.
type TimedMessageHeader struct {
	MessageHeader
	Tag tag.Tag
}

// EncodeTimedMessageHeader writes the TIMED_MESSAGE header (tag 9).
func EncodeTimedMessageHeader(h TimedMessageHeader) []byte {
	buf := make([]byte, TimedMessageHeaderSize)
	buf[0] = byte(MsgTimedMessage)
	binary.LittleEndian.PutUint16(buf[1:3], h.Port)
	binary.LittleEndian.PutUint16(buf[3:5], h.Fed)
	binary.LittleEndian.PutUint32(buf[5:9], h.Length)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(h.Tag.Time))
	binary.LittleEndian.PutUint32(buf[17:21], h.Tag.Microstep)
	return buf
}

// DecodeTimedMessageHeaderBody decodes the 20-byte body following the
// TIMED_MESSAGE tag byte (port, fed, len, tag_time, tag_microstep).
func DecodeTimedMessageHeaderBody(body []byte) TimedMessageHeader {
	return TimedMessageHeader{
		MessageHeader: MessageHeader{
			Port:   binary.LittleEndian.Uint16(body[0:2]),
			Fed:    binary.LittleEndian.Uint16(body[2:4]),
			Length: binary.LittleEndian.Uint32(body[4:8]),
		},
		Tag: tag.New(tag.Time(binary.LittleEndian.Uint64(body[8:16])), binary.LittleEndian.Uint32(body[16:20])),
	}
}

// encodeTagMessage is the shared encoder for NEXT_EVENT_TAG,
// LOGICAL_TAG_COMPLETE, and TIME_ADVANCE_GRANT, which all carry an
// (i64 time, u32 microstep) payload and differ only in tag byte.
func encodeTagMessage(t MsgType, tg tag.Tag) []byte {
	buf := make([]byte, 1+8+4)
	buf[0] = byte(t)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(tg.Time))
	binary.LittleEndian.PutUint32(buf[9:13], tg.Microstep)
	return buf
}

// decodeTagBody decodes the shared 12-byte (i64, u32) tag payload.
func decodeTagBody(body []byte) tag.Tag {
	return tag.New(tag.Time(binary.LittleEndian.Uint64(body[0:8])), binary.LittleEndian.Uint32(body[8:12]))
}

// EncodeNextEventTag writes a NEXT_EVENT_TAG message.
func EncodeNextEventTag(t tag.Tag) []byte { return encodeTagMessage(MsgNextEventTag, t) }

// DecodeNextEventTagBody decodes a NEXT_EVENT_TAG payload.
func DecodeNextEventTagBody(body []byte) tag.Tag { return decodeTagBody(body) }

// EncodeLogicalTagComplete writes a LOGICAL_TAG_COMPLETE message.
func EncodeLogicalTagComplete(t tag.Tag) []byte { return encodeTagMessage(MsgLogicalTagComplete, t) }

// DecodeLogicalTagCompleteBody decodes a LOGICAL_TAG_COMPLETE payload.
func DecodeLogicalTagCompleteBody(body []byte) tag.Tag { return decodeTagBody(body) }

// EncodeTimeAdvanceGrant writes a TIME_ADVANCE_GRANT message.
func EncodeTimeAdvanceGrant(t tag.Tag) []byte { return encodeTagMessage(MsgTimeAdvanceGrant, t) }

// DecodeTimeAdvanceGrantBody decodes a TIME_ADVANCE_GRANT payload.
func DecodeTimeAdvanceGrantBody(body []byte) tag.Tag { return decodeTagBody(body) }

// EncodeStopRequest writes a STOP_REQUEST message.
func EncodeStopRequest(t tag.Time) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(MsgStopRequest)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(t))
	return buf
}

// DecodeStopRequestBody decodes an 8-byte STOP_REQUEST payload.
func DecodeStopRequestBody(body []byte) tag.Time { return tag.Time(binary.LittleEndian.Uint64(body)) }

// EncodeStopRequestReply writes a STOP_REQUEST_REPLY message.
func EncodeStopRequestReply(t tag.Time) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(MsgStopRequestReply)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(t))
	return buf
}

// DecodeStopRequestReplyBody decodes an 8-byte STOP_REQUEST_REPLY payload.
func DecodeStopRequestReplyBody(body []byte) tag.Time {
	return tag.Time(binary.LittleEndian.Uint64(body))
}

// EncodeStopGranted writes a STOP_GRANTED message.
func EncodeStopGranted(t tag.Time) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(MsgStopGranted)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(t))
	return buf
}

// DecodeStopGrantedBody decodes an 8-byte STOP_GRANTED payload.
func DecodeStopGrantedBody(body []byte) tag.Time { return tag.Time(binary.LittleEndian.Uint64(body)) }

// EncodeResign writes a RESIGN message (empty payload).
func EncodeResign() []byte { return []byte{byte(MsgResign)} }

// PhysClockPayload is the payload shared by the four clock-sync
// sub-messages. FedID is only meaningful (and only sent) for T3.
type PhysClockPayload struct {
	PhysicalTime time.Time
	FedID        int32
}

// EncodePhysClockT1T4 writes a T1, T4, or T4_CODED_PROBE message, which
// all carry only an i64 physical time.
func EncodePhysClockT1T4(physicalTime time.Time) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(MsgPhysClock)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(physicalTime.UnixNano()))
	return buf
}

// DecodePhysClockT1T4Body decodes the 8-byte body of a T1/T4/coded-probe
// message.
func DecodePhysClockT1T4Body(body []byte) time.Time {
	return time.Unix(0, int64(binary.LittleEndian.Uint64(body)))
}

// EncodePhysClockT3 writes a T3 message, which additionally carries the
// sending federate's id.
func EncodePhysClockT3(physicalTime time.Time, fedID int32) []byte {
	buf := make([]byte, 1+8+4)
	buf[0] = byte(MsgPhysClock)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(physicalTime.UnixNano()))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(fedID))
	return buf
}

// DecodePhysClockT3Body decodes the 12-byte body of a T3 message.
func DecodePhysClockT3Body(body []byte) (time.Time, int32) {
	t := time.Unix(0, int64(binary.LittleEndian.Uint64(body[0:8])))
	fedID := int32(binary.LittleEndian.Uint32(body[8:12]))
	return t, fedID
}
