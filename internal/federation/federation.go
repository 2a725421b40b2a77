package federation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dantte-lp/lf-rti/internal/tag"
)

// Tuning constants, per the EXTERNAL INTERFACES knob list. These are the
// compiled-in defaults; internal/config layers YAML/env overrides on top
// of them before a Federation is constructed (see cmd/rti).
const (
	// DefaultTCPTimeout bounds a single RTI<->federate TCP read/write.
	DefaultTCPTimeout = 5 * time.Second
	// DefaultUDPTimeout bounds a single clock-sync UDP read/write.
	DefaultUDPTimeout = 1 * time.Second
	// DefaultStartingPort is the first port the acceptor sweeps from.
	DefaultStartingPort = 15045
	// DefaultPortRangeLimit bounds how far the acceptor sweeps before
	// giving up.
	DefaultPortRangeLimit = 1024
	// DefaultConnectNumRetries bounds a federate client's connection
	// attempts before treating the failure as self-fatal.
	DefaultConnectNumRetries = 500
	// DefaultConnectRetryInterval is the federate client's backoff
	// between connection attempts.
	DefaultConnectRetryInterval = 250 * time.Millisecond
	// DefaultClockSyncT1Period is the steady-state interval between
	// clock-sync rounds, per federate.
	DefaultClockSyncT1Period = 5 * time.Second
	// DefaultClockSyncT4MessagesPerInterval is the number of T1/T3/T4
	// rounds run in-band during admission to seed the initial offset.
	DefaultClockSyncT4MessagesPerInterval = 10
	// DefaultDelayStart is the fixed offset added to max(proposed
	// start times) to compute the federation's actual start time.
	DefaultDelayStart = 1 * time.Second
)

// Edge describes one static upstream dependency: federate From delays
// its emissions to federate To by Delay (zero is legal — a same-instant
// causal edge).
type Edge struct {
	From, To uint16
	Delay    tag.Time
}

// Params carries the tuning knobs a Federation is constructed with. The
// zero value is not meaningful; use DefaultParams and override only the
// fields a caller needs to change.
type Params struct {
	TCPTimeout                  time.Duration
	UDPTimeout                  time.Duration
	StartingPort                int
	PortRangeLimit              int
	FedComBufferSize            int
	ConnectNumRetries           int
	ConnectRetryInterval        time.Duration
	ClockSyncT1Period           time.Duration
	ClockSyncT4MessagesPerInterval int
	DelayStart                  time.Duration
}

// DefaultParams returns the compiled-in tuning defaults.
func DefaultParams() Params {
	return Params{
		TCPTimeout:                     DefaultTCPTimeout,
		UDPTimeout:                     DefaultUDPTimeout,
		StartingPort:                   DefaultStartingPort,
		PortRangeLimit:                 DefaultPortRangeLimit,
		FedComBufferSize:               32 * 1024,
		ConnectNumRetries:              DefaultConnectNumRetries,
		ConnectRetryInterval:           DefaultConnectRetryInterval,
		ClockSyncT1Period:              DefaultClockSyncT1Period,
		ClockSyncT4MessagesPerInterval: DefaultClockSyncT4MessagesPerInterval,
		DelayStart:                     DefaultDelayStart,
	}
}

// Federation is the RTI's coordinator state: the federate table, the
// start-time and stop-consensus counters, and the two condition
// variables the admission barrier and stop protocol wait on.
//
// The whole record is guarded by mu, per the CONCURRENCY & RESOURCE
// MODEL's single coarse-grained mutex: every state machine transition
// (admission, tag advance, relay dispatch decision, stop bookkeeping)
// happens with mu held. Sockets are read/written outside the lock; only
// the resulting state update takes it.
type Federation struct {
	mu sync.Mutex

	// receivedStartTimes is signaled whenever a proposal arrives and
	// broadcast once numProposedStart reaches N.
	receivedStartTimes *sync.Cond
	// sentStartTime is broadcast when the barrier releases (before any
	// TIMESTAMP is written), waking the handler goroutines blocked in
	// ProposeStartTime; each then writes TIMESTAMP to its own connection.
	sentStartTime *sync.Cond

	id     string
	n      int
	params Params

	federates []*Federate

	maxStartTime     tag.Time
	numProposedStart int
	startTimeSent    bool
	startTime        tag.Time

	maxStopTime            tag.Time
	numRequestingStop      int
	stopGrantedAlreadySent bool

	allFederatesExited bool

	logger  *slog.Logger
	metrics MetricsReporter
}

// Option configures a Federation at construction time.
type Option func(*Federation)

// WithMetrics attaches a MetricsReporter. If mr is nil, metrics calls are
// discarded.
func WithMetrics(mr MetricsReporter) Option {
	return func(f *Federation) {
		if mr != nil {
			f.metrics = mr
		}
	}
}

// WithParams overrides the tuning knobs.
func WithParams(p Params) Option {
	return func(f *Federation) { f.params = p }
}

// New constructs a Federation for federationID with n dense federate ids
// 0..n-1, wired according to the static dependency graph edges. The
// federation table exists for the whole process lifetime, per the DATA
// MODEL lifecycle: New does not accept connections itself — that is
// Federation.Admit (admission.go).
func New(logger *slog.Logger, federationID string, n int, edges []Edge, opts ...Option) *Federation {
	f := &Federation{
		id:           federationID,
		n:            n,
		params:       DefaultParams(),
		federates:    make([]*Federate, n),
		maxStartTime: tag.NeverTime,
		maxStopTime:  tag.NeverTime,
		logger:       logger,
		metrics:      noopMetrics{},
	}
	f.receivedStartTimes = sync.NewCond(&f.mu)
	f.sentStartTime = sync.NewCond(&f.mu)

	for i := range n {
		f.federates[i] = newFederate(uint16(i))
	}
	for _, e := range edges {
		from := f.federates[e.From]
		to := f.federates[e.To]
		to.Upstream = append(to.Upstream, e.From)
		to.UpstreamDelay = append(to.UpstreamDelay, e.Delay)
		from.Downstream = append(from.Downstream, e.To)
	}

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ID returns the federation's name.
func (f *Federation) ID() string { return f.id }

// N returns the federation's static size.
func (f *Federation) N() int { return f.n }

// Params returns the tuning knobs this Federation was constructed with.
func (f *Federation) Params() Params { return f.params }

// snapshotFederate copies federate id's externally-visible fields under
// the lock. Used by tests and the debug/inspection HTTP surface so
// neither has to hold the federation mutex.
func (f *Federation) snapshotFederate(id uint16) Federate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.federates[id]
}

// Snapshot returns a copy of every federate record, for the debug HTTP
// surface and for tests asserting on end-to-end scenarios.
func (f *Federation) Snapshot() []Federate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Federate, len(f.federates))
	for i, fed := range f.federates {
		out[i] = *fed
	}
	return out
}

// setState transitions fed to s, reporting the change to metrics. Caller
// must hold f.mu.
func (f *Federation) setState(fed *Federate, s State) {
	if fed.State == s {
		return
	}
	old := fed.State
	fed.State = s
	f.metrics.FederateStateChanged(fed.ID, old, s)
}
