// Package rticlient implements the federate-side counterpart to package
// federation: a TCP session to the RTI, peer-to-peer physical
// connections, and the local state machine a Local Scheduler drives
// through AdvanceRequest, LogicalTagComplete, Send, and RequestStop.
// Clock synchronization runs only as the in-band TCP rounds during the
// handshake; the client opens no UDP clock-sync socket, and with clock
// sync enabled it reports UDP port 1 in UDP_PORT.
package rticlient

import "fmt"

// State is a federate client's lifecycle state:
// Init -> RtiConnected -> StartAligned -> Running -> Stopping -> Stopped.
type State uint8

// Federate client lifecycle states.
const (
	StateInit State = iota
	StateRtiConnected
	StateStartAligned
	StateRunning
	StateStopping
	StateStopped
)

var stateNames = [...]string{
	StateInit:         "Init",
	StateRtiConnected:  "RtiConnected",
	StateStartAligned:  "StartAligned",
	StateRunning:       "Running",
	StateStopping:      "Stopping",
	StateStopped:       "Stopped",
}

func (s State) String() string {
	if int(s) < len(stateNames) && stateNames[s] != "" {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Event is one of the triggers that drives a Client's lifecycle forward.
type Event uint8

// Client lifecycle events.
const (
	// EventHandshakeComplete fires after a successful FED_ID/ACK/UDP_PORT
	// exchange.
	EventHandshakeComplete Event = iota
	// EventTimestampReceived fires on receipt of TIMESTAMP (the
	// start-time barrier releasing).
	EventTimestampReceived
	// EventOperating fires once the client begins its normal message
	// loop.
	EventOperating
	// EventStopRequested fires on receipt of STOP_REQUEST from the RTI,
	// or on a local RequestStop call.
	EventStopRequested
	// EventStopGranted fires on receipt of STOP_GRANTED.
	EventStopGranted
)

// stateEvent is the transition table's lookup key.
type stateEvent struct {
	state State
	event Event
}

// transitions is the pure lookup table driving State changes: a map over
// (state, event) rather than a scattered set of booleans. An entry
// absent from the table is an illegal transition in the current state
// and is rejected by applyEvent
// without mutating anything.
var transitions = map[stateEvent]State{
	{StateInit, EventHandshakeComplete}:        StateRtiConnected,
	{StateRtiConnected, EventTimestampReceived}: StateStartAligned,
	{StateStartAligned, EventOperating}:         StateRunning,
	{StateRunning, EventStopRequested}:          StateStopping,
	{StateStopping, EventStopGranted}:           StateStopped,
	// A STOP_GRANTED received while still Running moves straight to
	// Stopped without passing through Stopping.
	{StateRunning, EventStopGranted}: StateStopped,
}

// applyEvent returns the next state for (current, ev), and ok=false if
// the transition is not defined for the current state.
func applyEvent(current State, ev Event) (State, bool) {
	next, ok := transitions[stateEvent{current, ev}]
	return next, ok
}
