package rticlient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dantte-lp/lf-rti/internal/wire"
)

// peerRegistry holds the open physical (peer-to-peer) connections this
// federate has established, keyed by the remote federate's id.
type peerRegistry struct {
	mu    sync.RWMutex
	conns map[uint16]net.Conn
}

func newPeerRegistry() *peerRegistry {
	return &peerRegistry{conns: make(map[uint16]net.Conn)}
}

func (p *peerRegistry) get(fedID uint16) (net.Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[fedID]
	return c, ok
}

func (p *peerRegistry) set(fedID uint16, conn net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[fedID] = conn
}

func (p *peerRegistry) remove(fedID uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, fedID)
}

// ConnectPeer queries the RTI for targetFed's advertised listener port,
// dials it directly, and registers the connection for future Send calls
// that target targetFed. It is a no-op if a connection is already open.
func (c *Client) ConnectPeer(ctx context.Context, targetFed uint16, host string) error {
	if _, ok := c.peers.get(targetFed); ok {
		return nil
	}

	port, err := c.QueryAddress(ctx, targetFed)
	if err != nil {
		return fmt.Errorf("query address for fed %d: %w", targetFed, err)
	}
	if port < 0 {
		return fmt.Errorf("rticlient: fed %d has not advertised a listener port yet", targetFed)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("dial peer fed %d: %w", targetFed, err)
	}
	c.peers.set(targetFed, conn)
	return nil
}

// ListenPeers opens a TCP listener for incoming physical connections
// from other federates, advertises its port to the RTI, and runs the
// accept loop until ctx is canceled. It is the body of the "one TCP
// listener for peer-to-peer connections" task from §5.
func (c *Client) ListenPeers(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen peer addr %s: %w", addr, err)
	}

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	var port int32
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	if err := c.AdvertiseAddress(port); err != nil {
		_ = ln.Close()
		return fmt.Errorf("advertise peer address: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept peer connection: %w", err)
		}
		go c.handlePeerConn(conn)
	}
}

// handlePeerConn is the per-accepted-peer handler task: it reads
// MESSAGE/TIMED_MESSAGE frames directly (physical connections carry
// only untimed application traffic per §4.7, but the wire header format
// is shared with the RTI-relayed path) and forwards them to Scheduler.
func (c *Client) handlePeerConn(conn net.Conn) {
	defer conn.Close()
	timeout := c.cfg.TCPTimeout

	for {
		t, err := wire.ReadTag(conn, timeout)
		if err != nil {
			return
		}
		if t != wire.MsgMessage && t != wire.MsgTimedMessage {
			c.logger.Warn("unexpected message on peer connection", "tag", t)
			return
		}

		var header wire.MessageHeader
		var delay time.Duration
		if t == wire.MsgTimedMessage {
			body := make([]byte, wire.TimedMessageHeaderSize-1)
			if err := wire.ReadFull(conn, body, timeout); err != nil {
				return
			}
			th := wire.DecodeTimedMessageHeaderBody(body)
			header = th.MessageHeader
		} else {
			body := make([]byte, wire.MessageHeaderSize-1)
			if err := wire.ReadFull(conn, body, timeout); err != nil {
				return
			}
			header = wire.DecodeMessageHeaderBody(body)
		}

		payload := make([]byte, header.Length)
		if header.Length > 0 {
			if err := wire.ReadFull(conn, payload, timeout); err != nil {
				return
			}
		}
		if c.scheduler != nil {
			c.scheduler.ScheduleMessage(header.Port, header.Fed, payload, delay)
		}
	}
}
