package rticlient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dantte-lp/lf-rti/internal/clocksync"
	"github.com/dantte-lp/lf-rti/internal/tag"
	"github.com/dantte-lp/lf-rti/internal/wire"
)

// ErrConnectExhausted is self-fatal, per ERROR HANDLING DESIGN: "failure
// to connect to the RTI after CONNECT_NUM_RETRIES is self-fatal."
var ErrConnectExhausted = errors.New("rticlient: exhausted connection retries")

// ErrIllegalTransition indicates the client observed an event that is
// not legal in its current state -- a protocol violation by the RTI, or
// an application calling RequestStop twice, etc.
var ErrIllegalTransition = errors.New("rticlient: illegal state transition")

// Scheduler is the local event-queue collaborator the application embeds
// the federate client into. The federate client never touches the event
// queue itself; it only calls back into Scheduler when application
// traffic or a grant arrives.
type Scheduler interface {
	// ScheduleMessage delivers an application payload with the given
	// extra delay relative to the current logical time (zero for an
	// untimed MESSAGE; possibly negative, meaning "now", for a
	// TIMED_MESSAGE that arrived late).
	ScheduleMessage(port uint16, srcFed uint16, payload []byte, delay time.Duration)
}

// Config configures a Client's connection to the RTI and the static
// shape of its dependency graph, mirroring the fields a code-generated
// federate main() would supply.
type Config struct {
	RTIAddr              string
	FederationID         string
	FedID                uint16
	HasUpstream          bool
	HasDownstream        bool
	ClockSyncEnabled     bool
	ProposedStartTime    tag.Time
	TCPTimeout           time.Duration
	UDPTimeout           time.Duration
	ConnectNumRetries    int
	ConnectRetryInterval time.Duration
}

// DefaultConfig fills in the same tuning defaults as federation.DefaultParams.
func DefaultConfig() Config {
	return Config{
		TCPTimeout:           5 * time.Second,
		UDPTimeout:           1 * time.Second,
		ConnectNumRetries:    500,
		ConnectRetryInterval: 250 * time.Millisecond,
	}
}

// Client is the federate-side session with the RTI: its TCP session,
// its current tag-advance wait, and its lifecycle state. One Client
// exists per federate process.
type Client struct {
	cfg       Config
	scheduler Scheduler
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	conn        wire.Conn
	rawConn     net.Conn
	startTime   tag.Time
	lastGranted tag.Tag
	grantCh     chan tag.Tag
	stopGranted chan tag.Time
	addressAd   chan int32

	peers *peerRegistry
}

// New constructs a Client in StateInit. scheduler receives application
// message callbacks; it may be nil if the caller never expects MESSAGE
// or TIMED_MESSAGE traffic.
func New(cfg Config, scheduler Scheduler, logger *slog.Logger) *Client {
	return &Client{
		cfg:         cfg,
		scheduler:   scheduler,
		logger:      logger,
		state:       StateInit,
		lastGranted: tag.Zero,
		grantCh:     make(chan tag.Tag, 1),
		stopGranted: make(chan tag.Time, 1),
		addressAd:   make(chan int32, 1),
		peers:       newPeerRegistry(),
	}
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) transition(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, ok := applyEvent(c.state, ev)
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, c.state)
	}
	c.logger.Debug("client state transition", "from", c.state, "to", next, "event", ev)
	c.state = next
	return nil
}

func (e Event) String() string {
	switch e {
	case EventHandshakeComplete:
		return "HandshakeComplete"
	case EventTimestampReceived:
		return "TimestampReceived"
	case EventOperating:
		return "Operating"
	case EventStopRequested:
		return "StopRequested"
	case EventStopGranted:
		return "StopGranted"
	default:
		return "Unknown"
	}
}

// Connect dials the RTI, retrying up to cfg.ConnectNumRetries times with
// cfg.ConnectRetryInterval backoff before giving up self-fatally, then
// runs the full admission handshake through the start-time barrier, and
// finally spawns the RTI-session listener goroutine. On success the
// client is in StateRunning.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dialWithRetry(ctx)
	if err != nil {
		return err
	}
	c.rawConn = conn
	c.conn = conn

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return err
	}
	if err := c.transition(EventHandshakeComplete); err != nil {
		return err
	}

	startTime, err := c.awaitStartTime(ctx)
	if err != nil {
		_ = conn.Close()
		return err
	}
	c.mu.Lock()
	c.startTime = startTime
	c.mu.Unlock()
	if err := c.transition(EventTimestampReceived); err != nil {
		return err
	}

	go c.listenRTI()

	return c.transition(EventOperating)
}

// StartTime returns the federation-wide logical start time, valid only
// after Connect returns successfully.
func (c *Client) StartTime() tag.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime
}

func (c *Client) dialWithRetry(ctx context.Context) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.ConnectNumRetries; attempt++ {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", c.cfg.RTIAddr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.ConnectRetryInterval):
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrConnectExhausted, lastErr)
}

// handshake performs FED_ID/ACK/UDP_PORT plus the fixed number of
// in-band clock-sync rounds, per admission step 4.
func (c *Client) handshake(_ context.Context) error {
	timeout := c.cfg.TCPTimeout

	fedIDBuf, err := wire.EncodeFedID(wire.FedIDPayload{FedID: c.cfg.FedID, FederationID: c.cfg.FederationID})
	if err != nil {
		return err
	}
	if err := wire.WriteFull(c.conn, fedIDBuf, timeout); err != nil {
		return err
	}

	t, err := wire.ReadTag(c.conn, timeout)
	if err != nil {
		return err
	}
	if t == wire.MsgReject {
		body := make([]byte, 1)
		if err := wire.ReadFull(c.conn, body, timeout); err != nil {
			return err
		}
		return fmt.Errorf("rticlient: rejected: %s", wire.DecodeRejectBody(body))
	}
	if t != wire.MsgAck {
		return fmt.Errorf("rticlient: expected ACK, got %s", t)
	}

	port := uint16(0)
	if c.cfg.ClockSyncEnabled {
		port = 1
	}
	if err := wire.WriteFull(c.conn, wire.EncodeUDPPort(port), timeout); err != nil {
		return err
	}

	if c.cfg.ClockSyncEnabled {
		obs, err := c.runClockSyncRounds(10)
		if err != nil {
			return err
		}
		if len(obs) > 0 {
			c.logger.Debug("initial clock offset estimate", "offset", clocksync.EstimateOffset(obs[len(obs)-1]))
		}
	}

	return nil
}

// runClockSyncRounds runs n in-band TCP T1/T3/T4 rounds, replying to
// each T1 with a T3 carrying this federate's own reading and this
// federate's id, and returns every completed Observation.
func (c *Client) runClockSyncRounds(n int) ([]clocksync.Observation, error) {
	timeout := c.cfg.TCPTimeout
	out := make([]clocksync.Observation, 0, n)

	for i := 0; i < n; i++ {
		if _, err := wire.ReadTag(c.conn, timeout); err != nil {
			return out, err
		}
		body := make([]byte, 8)
		if err := wire.ReadFull(c.conn, body, timeout); err != nil {
			return out, err
		}
		t1 := wire.DecodePhysClockT1T4Body(body)
		t3Local := time.Now()

		if err := wire.WriteFull(c.conn, wire.EncodePhysClockT3(t3Local, int32(c.cfg.FedID)), timeout); err != nil {
			return out, err
		}

		if _, err := wire.ReadTag(c.conn, timeout); err != nil {
			return out, err
		}
		t4Body := make([]byte, 8)
		if err := wire.ReadFull(c.conn, t4Body, timeout); err != nil {
			return out, err
		}
		t4 := wire.DecodePhysClockT1T4Body(t4Body)
		t4Recv := time.Now()

		if _, err := wire.ReadTag(c.conn, timeout); err != nil {
			return out, err
		}
		probeBody := make([]byte, 8)
		if err := wire.ReadFull(c.conn, probeBody, timeout); err != nil {
			return out, err
		}
		probe := wire.DecodePhysClockT1T4Body(probeBody)
		probeRecv := time.Now()

		out = append(out, clocksync.Observation{
			T1: t1, T3: t3Local, T4: t4, T4Probe: probe,
			LocalT4Recv: t4Recv, LocalProbeRecv: probeRecv,
		})
	}
	return out, nil
}

// awaitStartTime sends the proposed start time and blocks for the RTI's
// TIMESTAMP reply, which arrives only once the admission barrier
// releases.
func (c *Client) awaitStartTime(_ context.Context) (tag.Time, error) {
	timeout := c.cfg.TCPTimeout
	if err := wire.WriteFull(c.conn, wire.EncodeTimestamp(c.cfg.ProposedStartTime), timeout); err != nil {
		return 0, err
	}
	t, err := wire.ReadTag(c.conn, timeout)
	if err != nil {
		return 0, err
	}
	if t != wire.MsgTimestamp {
		return 0, fmt.Errorf("rticlient: expected TIMESTAMP, got %s", t)
	}
	body := make([]byte, 8)
	if err := wire.ReadFull(c.conn, body, timeout); err != nil {
		return 0, err
	}
	return wire.DecodeTimestampBody(body), nil
}

// AdvanceRequest asks for permission to advance to t. If the federate
// has no upstream and no downstream, it returns t immediately with no
// RTI round trip. Otherwise it sends NEXT_EVENT_TAG and
// blocks until a TAG arrives on the RTI session, ctx is canceled, or
// interrupt delivers an earlier tag from the local event queue, in
// which case that earlier tag is returned without waiting further.
func (c *Client) AdvanceRequest(ctx context.Context, t tag.Tag, interrupt <-chan tag.Tag) (tag.Tag, error) {
	if !c.cfg.HasUpstream && !c.cfg.HasDownstream {
		return t, nil
	}

	if err := wire.WriteFull(c.conn, wire.EncodeNextEventTag(t), c.cfg.TCPTimeout); err != nil {
		return tag.Tag{}, err
	}

	select {
	case <-ctx.Done():
		return tag.Tag{}, ctx.Err()
	case granted := <-c.grantCh:
		return granted, nil
	case earlier := <-interrupt:
		return earlier, nil
	}
}

// LogicalTagComplete reports t as complete, iff the federate has
// downstream federates -- an LTC with no downstream to observe it is
// pure overhead.
func (c *Client) LogicalTagComplete(t tag.Tag) error {
	if !c.cfg.HasDownstream {
		return nil
	}
	return wire.WriteFull(c.conn, wire.EncodeLogicalTagComplete(t), c.cfg.TCPTimeout)
}

// Send transmits an application payload to destFed. If a peer-to-peer
// physical connection to destFed is already open, it is sent directly
// over that socket; otherwise it goes through the RTI as a
// MESSAGE/TIMED_MESSAGE, per §4.7.
func (c *Client) Send(port, destFed uint16, payload []byte, timed bool, t tag.Tag) error {
	var header []byte
	if timed {
		header = wire.EncodeTimedMessageHeader(wire.TimedMessageHeader{
			MessageHeader: wire.MessageHeader{Port: port, Fed: destFed, Length: uint32(len(payload))},
			Tag:           t,
		})
	} else {
		header = wire.EncodeMessageHeader(wire.MessageHeader{Port: port, Fed: destFed, Length: uint32(len(payload))})
	}

	dst := c.conn
	if peer, ok := c.peers.get(destFed); ok {
		dst = peer
	}

	if err := wire.WriteFull(dst, header, c.cfg.TCPTimeout); err != nil {
		return err
	}
	return wire.WriteFull(dst, payload, c.cfg.TCPTimeout)
}

// RequestStop initiates federation-wide stop consensus with a proposed
// tag, transitioning the client to StateStopping.
func (c *Client) RequestStop(t tag.Time) error {
	if err := wire.WriteFull(c.conn, wire.EncodeStopRequest(t), c.cfg.TCPTimeout); err != nil {
		return err
	}
	return c.transition(EventStopRequested)
}

// AwaitStopGranted blocks until STOP_GRANTED arrives (observed by the
// RTI-session listener goroutine) or ctx is canceled.
func (c *Client) AwaitStopGranted(ctx context.Context) (tag.Time, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case final := <-c.stopGranted:
		return final, nil
	}
}

// Resign sends RESIGN and closes the RTI session.
func (c *Client) Resign() error {
	if err := wire.WriteFull(c.conn, wire.EncodeResign(), c.cfg.TCPTimeout); err != nil {
		return err
	}
	return c.rawConn.Close()
}

// listenRTI is the RTI listener task: it dispatches every message that
// arrives on the RTI session until the connection closes.
func (c *Client) listenRTI() {
	timeout := c.cfg.TCPTimeout
	for {
		t, err := wire.ReadTag(c.conn, timeout)
		if errors.Is(err, wire.ErrTimeout) {
			// A quiet RTI session is not closed: keep waiting.
			continue
		}
		if err != nil {
			c.logger.Warn("rti session closed", "err", err)
			return
		}

		switch t {
		case wire.MsgTimeAdvanceGrant:
			body := make([]byte, 12)
			if err := wire.ReadFull(c.conn, body, timeout); err != nil {
				return
			}
			granted := wire.DecodeTimeAdvanceGrantBody(body)
			c.mu.Lock()
			c.lastGranted = granted
			c.mu.Unlock()
			select {
			case c.grantCh <- granted:
			default:
			}

		case wire.MsgMessage:
			if !c.dispatchApplicationMessage(false) {
				return
			}

		case wire.MsgTimedMessage:
			if !c.dispatchApplicationMessage(true) {
				return
			}

		case wire.MsgStopRequest:
			body := make([]byte, 8)
			if err := wire.ReadFull(c.conn, body, timeout); err != nil {
				return
			}
			if err := c.transition(EventStopRequested); err != nil {
				c.logger.Debug("stop request while already stopping", "err", err)
			}

		case wire.MsgStopGranted:
			body := make([]byte, 8)
			if err := wire.ReadFull(c.conn, body, timeout); err != nil {
				return
			}
			final := wire.DecodeStopGrantedBody(body)
			_ = c.transition(EventStopGranted)
			select {
			case c.stopGranted <- final:
			default:
			}
			return

		case wire.MsgAddressAd:
			body := make([]byte, 4)
			if err := wire.ReadFull(c.conn, body, timeout); err != nil {
				return
			}
			port := wire.DecodeAddressAdBody(body)
			select {
			case c.addressAd <- port:
			default:
			}

		default:
			c.logger.Warn("unexpected message from rti", "tag", t)
			return
		}
	}
}

// dispatchApplicationMessage reads one MESSAGE/TIMED_MESSAGE body and
// forwards it to the Scheduler. For TIMED_MESSAGE, the scheduling delay
// is the message's tag minus the last tag this federate was granted
// (its best approximation of "current logical time"); a negative result
// means the message is already due and the scheduler treats it as now.
func (c *Client) dispatchApplicationMessage(timed bool) bool {
	timeout := c.cfg.TCPTimeout
	var header wire.MessageHeader
	var delay time.Duration

	if timed {
		body := make([]byte, wire.TimedMessageHeaderSize-1)
		if err := wire.ReadFull(c.conn, body, timeout); err != nil {
			return false
		}
		th := wire.DecodeTimedMessageHeaderBody(body)
		header = th.MessageHeader
		c.mu.Lock()
		delay = time.Duration(th.Tag.Time - c.lastGranted.Time)
		c.mu.Unlock()
	} else {
		body := make([]byte, wire.MessageHeaderSize-1)
		if err := wire.ReadFull(c.conn, body, timeout); err != nil {
			return false
		}
		header = wire.DecodeMessageHeaderBody(body)
	}

	payload := make([]byte, header.Length)
	if header.Length > 0 {
		if err := wire.ReadFull(c.conn, payload, timeout); err != nil {
			return false
		}
	}

	if c.scheduler != nil {
		c.scheduler.ScheduleMessage(header.Port, header.Fed, payload, delay)
	}
	return true
}

// QueryAddress asks the RTI for targetFed's advertised peer-to-peer
// listener port, blocking for the ADDRESS_AD reply. It is meant to be
// called before attempting to dial a physical connection.
//
// The reply is read by the listenRTI goroutine, not here: the RTI
// session is a single shared connection, and listenRTI is its only
// reader, so QueryAddress only writes the request and waits on the
// channel listenRTI delivers the decoded reply on.
func (c *Client) QueryAddress(ctx context.Context, targetFed uint16) (int32, error) {
	if err := wire.WriteFull(c.conn, wire.EncodeAddressQuery(targetFed), c.cfg.TCPTimeout); err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case port := <-c.addressAd:
		return port, nil
	}
}

// AdvertiseAddress tells the RTI this federate's peer-to-peer listener
// port, so other federates' ADDRESS_QUERYs can resolve it.
func (c *Client) AdvertiseAddress(listenPort int32) error {
	return wire.WriteFull(c.conn, wire.EncodeAddressAd(listenPort), c.cfg.TCPTimeout)
}
