package federation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"
)

// ErrPortRangeExhausted is returned when no port in
// [StartingPort, StartingPort+PortRangeLimit] could be bound.
var ErrPortRangeExhausted = errors.New("federation: no free port in configured range")

// ListenTCP sweeps upward from f.params.StartingPort looking for a free
// TCP port, per EXTERNAL INTERFACES: "Listening ports are selected by
// sweeping from STARTING_PORT; the chosen TCP port is printed." The
// returned listener is wrapped in netutil.LimitListener bounding the
// number of simultaneously open accepted connections (admitted sessions
// included, since Admit holds its connection for the whole session) to
// the federation size.
func (f *Federation) ListenTCP() (net.Listener, error) {
	ln, _, err := sweepListen("tcp", f.params.StartingPort, f.params.PortRangeLimit)
	if err != nil {
		return nil, err
	}
	return netutil.LimitListener(ln, f.n), nil
}

// ListenUDP binds the clock-sync UDP socket at tcpPort+1, mirroring
// EXTERNAL INTERFACES: "the UDP server attempts TCP_port + 1."
func ListenUDP(tcpPort int) (*net.UDPConn, error) {
	addr := &net.UDPAddr{Port: tcpPort + 1}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp on %d: %w", addr.Port, err)
	}
	return conn, nil
}

// sweepListen tries successive ports from start through start+limit
// inclusive, binding with SO_REUSEADDR so a recently-restarted RTI
// does not lose its preferred starting port to a lingering TIME_WAIT
// socket.
func sweepListen(network string, start, limit int) (net.Listener, int, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	for i := range limit + 1 {
		port := start + i
		ln, err := lc.Listen(context.Background(), network, fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, ErrPortRangeExhausted
}

// AcceptLoop runs the RTI's TCP acceptor: it accepts connections from ln
// until ctx is canceled or the listener closes, admitting each one in
// its own goroutine via Admit. It is the entire body of the "one TCP
// acceptor task" from CONCURRENCY & RESOURCE MODEL.
func (f *Federation) AcceptLoop(ctx context.Context, ln net.Listener) error {
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
			return fmt.Errorf("accept: %w", err)
		}
		go f.Admit(conn)
	}
}
