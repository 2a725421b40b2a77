package federation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dantte-lp/lf-rti/internal/wire"
)

// Severity classifies an error for logging and control flow, per the
// ERROR HANDLING DESIGN's four-way taxonomy.
type Severity int

// Error severities.
const (
	// SeverityProtocol is a REJECT-worthy admission failure.
	SeverityProtocol Severity = iota
	// SeverityTransient is a retried read/write timeout or partial
	// write.
	SeverityTransient
	// SeverityPeerFatal demotes the affected federate to
	// NotConnected but leaves the rest of the federation running.
	SeverityPeerFatal
	// SeveritySelfFatal means the RTI process itself cannot continue
	// (bind failure, acceptor socket failure).
	SeveritySelfFatal
)

// Sentinel errors for conditions this package itself detects, distinct
// from the wire package's I/O classification errors.
var (
	// ErrUnknownMessageType is peer-fatal: an unrecognized tag byte
	// arrived on a federate's session.
	ErrUnknownMessageType = errors.New("federation: unknown message type")
	// ErrFederateIDOutOfRange is a protocol (REJECT) error during
	// admission.
	ErrFederateIDOutOfRange = errors.New("federation: federate id out of range")
	// ErrFederateIDInUse is a protocol (REJECT) error during
	// admission.
	ErrFederateIDInUse = errors.New("federation: federate id already in use")
	// ErrFederationIDMismatch is a protocol (REJECT) error during
	// admission.
	ErrFederationIDMismatch = errors.New("federation: federation id mismatch")
	// ErrWrongServer is a protocol (REJECT) error: the first byte
	// looked like a peer-to-peer message tag, not FED_ID.
	ErrWrongServer = errors.New("federation: wrong server (peer-to-peer tag on RTI session)")
	// ErrUnexpectedMessage is a protocol (REJECT) error: a
	// well-formed but out-of-sequence message arrived.
	ErrUnexpectedMessage = errors.New("federation: unexpected message")
)

// Classified pairs a Severity with the underlying error, so a single
// dispatch method (Classified.Log below) decides the log level and
// control-flow consequence without every caller re-deriving severity.
type Classified struct {
	Severity Severity
	Err      error
	FedID    uint16
}

// Classify maps a raw error from a federate session into a Classified
// value. I/O errors from package wire map to transient (timeouts) or
// peer-fatal (closed/unexpected EOF/unclassified I/O); everything else
// defaults to peer-fatal, since an unrecognized error on a federate
// socket should not be allowed to wedge the federation.
func Classify(fedID uint16, err error) Classified {
	switch {
	case err == nil:
		return Classified{}
	case errors.Is(err, wire.ErrTimeout):
		return Classified{Severity: SeverityTransient, Err: err, FedID: fedID}
	case errors.Is(err, ErrFederateIDOutOfRange),
		errors.Is(err, ErrFederateIDInUse),
		errors.Is(err, ErrFederationIDMismatch),
		errors.Is(err, ErrWrongServer),
		errors.Is(err, ErrUnexpectedMessage):
		return Classified{Severity: SeverityProtocol, Err: err, FedID: fedID}
	default:
		return Classified{Severity: SeverityPeerFatal, Err: err, FedID: fedID}
	}
}

// Log emits c at the severity-appropriate slog level. It never exits the
// process — self-fatal handling is the caller's responsibility (see
// cmd/rti, which is the only place allowed to call os.Exit per the
// run()-int / os.Exit(run()) split).
func (c Classified) Log(logger *slog.Logger) {
	attrs := []any{slog.Uint64("fed_id", uint64(c.FedID)), slog.String("err", fmt.Sprint(c.Err))}
	switch c.Severity {
	case SeverityTransient:
		logger.Warn("transient i/o error, retrying", attrs...)
	case SeverityProtocol:
		logger.Info("rejecting federate", attrs...)
	case SeverityPeerFatal:
		logger.Warn("federate demoted to NotConnected", attrs...)
	case SeveritySelfFatal:
		logger.Error("self-fatal error", attrs...)
	}
}

// RejectCauseFor maps a protocol-severity error to its wire REJECT
// cause. Any error that is not one of the protocol sentinels above maps
// to RejectUnexpectedMessage; callers only invoke this after Classify
// reports SeverityProtocol.
func RejectCauseFor(err error) wire.RejectCause {
	switch {
	case errors.Is(err, ErrFederationIDMismatch):
		return wire.RejectFederationIDMismatch
	case errors.Is(err, ErrFederateIDOutOfRange):
		return wire.RejectFedIDOutOfRange
	case errors.Is(err, ErrFederateIDInUse):
		return wire.RejectFedIDInUse
	case errors.Is(err, ErrWrongServer):
		return wire.RejectWrongServer
	default:
		return wire.RejectUnexpectedMessage
	}
}
