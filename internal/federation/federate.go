// Package federation implements the RTI's coordinator state machine: the
// federation table, the admission and start-time barrier, the tag-advance
// engine, message relay, and stop consensus. It is the centralized
// counterpart to the per-federate logic in package rticlient.
package federation

import (
	"fmt"
	"net"
	"sync"

	"github.com/dantte-lp/lf-rti/internal/tag"
)

// State is a federate's admission/lifecycle state. It is monotonic:
// once Granted, a federate only moves forward to Stopped, never back to
// NotConnected, except that a lost connection at any point demotes
// straight to NotConnected so the tag-advance engine can stop waiting on
// it (see SeverityPeerFatal in errors.go for that transition's
// classification).
type State uint8

// Federate lifecycle states.
const (
	StateNotConnected State = iota
	StatePending
	StateGranted
	StateStopped
)

var stateNames = [...]string{
	StateNotConnected: "NotConnected",
	StatePending:       "Pending",
	StateGranted:       "Granted",
	StateStopped:       "Stopped",
}

// unknownStateFmt is the fallback format for an out-of-range State.
const unknownStateFmt = "State(%d)"

// String renders the state's name, or a numeric fallback.
func (s State) String() string {
	if int(s) < len(stateNames) && stateNames[s] != "" {
		return stateNames[s]
	}
	return fmt.Sprintf(unknownStateFmt, uint8(s))
}

// Federate is one federation member's record, as held by the RTI.
//
// All fields are guarded by the owning Federation's mutex; there is no
// per-field synchronization because the tag-advance engine must read
// several fields of several federates as one consistent snapshot, which
// a coarse lock gives for free and independent per-field atomics would
// not.
type Federate struct {
	// ID equals this federate's index in Federation.federates.
	ID uint16

	State State

	// Conn is the federate's RTI-facing TCP session. Valid iff
	// State is neither NotConnected nor Stopped.
	Conn net.Conn

	// UDPAddr is the federate's clock-sync UDP endpoint. Valid iff
	// ClockSyncEnabled.
	UDPAddr *net.UDPAddr

	// Completed is the largest tag this federate has declared it will
	// emit no further events at or before (via LOGICAL_TAG_COMPLETE).
	// Monotonically non-decreasing.
	Completed tag.Tag

	// NextEvent is the smallest tag at which this federate might next
	// produce an event, as of its last NEXT_EVENT_TAG. Always
	// satisfies NextEvent >= Completed.
	NextEvent tag.Tag

	// Upstream holds the federate ids this federate depends on; for
	// index i, UpstreamDelay[i] is the connection delay on the edge
	// from Upstream[i] to this federate. Both are static graph data,
	// immutable after the Federation is constructed.
	Upstream      []uint16
	UpstreamDelay []tag.Time

	// Downstream holds the federate ids that depend on this one.
	// Immutable after construction.
	Downstream []uint16

	// RequestedStop latches true once this federate has requested or
	// been counted as implicitly requesting termination. Monotonic:
	// false to true only.
	RequestedStop bool

	// ServerPort/ServerIP are this federate's advertised peer-to-peer
	// listener address, or (-1, "") until advertised.
	ServerPort int32
	ServerIP   string

	// ClockSyncEnabled is fixed at admission from the federate's
	// UDP_PORT handshake (port 0 disables it).
	ClockSyncEnabled bool

	// sendMu serializes writes to Conn. Multiple goroutines can decide
	// to write to the same federate's connection concurrently -- its
	// own handler replying to an ADDRESS_QUERY, another federate's
	// handler relaying a message to it, the tag-advance engine granting
	// it a TAG, stop consensus broadcasting to it -- and none of that
	// is coordinated by the federation mutex, which is released before
	// any socket write. sendMu is held for the duration of one whole
	// message (header plus any streamed payload) so two writers can
	// never interleave their bytes on the wire.
	sendMu sync.Mutex
}

// newFederate returns a zero-valued, NotConnected federate record for
// index id with no server address advertised yet.
func newFederate(id uint16) *Federate {
	return &Federate{
		ID:         id,
		State:      StateNotConnected,
		Completed:  tag.Zero,
		NextEvent:  tag.Never,
		ServerPort: -1,
	}
}

// completionCeiling returns f.Completed ⊕ delay, the tag-advance
// engine's term for "the latest tag at which f is known to have
// finished emitting, shifted by the downstream connection delay."
func (f *Federate) completionCeiling(delay tag.Time) tag.Tag {
	return f.Completed.Delay(delay)
}
