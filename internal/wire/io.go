package wire

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// Classified I/O failures. Every framed read/write reports one of these
// (possibly wrapped with additional context) so callers can apply the
// peer-fatal vs. transient distinction without re-inspecting net.Error.
var (
	// ErrClosed indicates the peer closed the connection cleanly.
	ErrClosed = errors.New("wire: connection closed")
	// ErrTimeout indicates a read or write deadline elapsed.
	ErrTimeout = errors.New("wire: i/o timeout")
	// ErrIO indicates an unclassified transport error.
	ErrIO = errors.New("wire: i/o error")
	// ErrUnexpectedEOF indicates the peer closed mid-frame.
	ErrUnexpectedEOF = errors.New("wire: unexpected eof mid-frame")
)

// classify maps a raw I/O error from a framed read/write into one of the
// four sentinels above, preserving the original error via %w.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, io.EOF):
		return wrapf(ErrClosed, err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return wrapf(ErrUnexpectedEOF, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wrapf(ErrTimeout, err)
	}
	return wrapf(ErrIO, err)
}

func wrapf(sentinel, cause error) error {
	return &classifiedError{sentinel: sentinel, cause: cause}
}

type classifiedError struct {
	sentinel error
	cause    error
}

func (e *classifiedError) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }
func (e *classifiedError) Unwrap() []error { return []error{e.sentinel, e.cause} }

// bufferPool hands out byte slices for relay chunks so the relay hot
// path does not allocate per message.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, FedComBufferSize)
		return &buf
	},
}

// GetBuffer returns a pooled byte slice of at least FedComBufferSize
// bytes. Callers must return it with PutBuffer when done.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer obtained from GetBuffer to the pool.
func PutBuffer(buf *[]byte) {
	bufferPool.Put(buf)
}

// FedComBufferSize bounds the chunk size used when streaming a relayed
// message payload, per the EXTERNAL INTERFACES tuning knobs.
const FedComBufferSize = 32 * 1024

// Conn is the subset of net.Conn that framed I/O needs; it is satisfied
// by both *net.TCPConn and *net.UDPConn (after a prior ReadFrom/WriteTo
// dance) as well as test fakes.
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// ReadFull reads exactly len(buf) bytes from c, applying timeout as a
// read deadline. It is resilient to short reads: io.ReadFull already
// loops internally, so this wrapper's job is solely to classify the
// resulting error and apply the deadline.
func ReadFull(c Conn, buf []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return classify(err)
		}
	}
	_, err := io.ReadFull(c, buf)
	return classify(err)
}

// WriteFull writes exactly len(buf) bytes to c, applying timeout as a
// write deadline. Short writes are retried until buf is exhausted or an
// error occurs.
func WriteFull(c Conn, buf []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return classify(err)
		}
	}
	for written := 0; written < len(buf); {
		n, err := c.Write(buf[written:])
		written += n
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

// ReadTag reads a single message tag byte from c.
func ReadTag(c Conn, timeout time.Duration) (MsgType, error) {
	var b [1]byte
	if err := ReadFull(c, b[:], timeout); err != nil {
		return 0, err
	}
	return MsgType(b[0]), nil
}

// WriteTag writes a single message tag byte to c.
func WriteTag(c Conn, t MsgType, timeout time.Duration) error {
	return WriteFull(c, []byte{byte(t)}, timeout)
}
