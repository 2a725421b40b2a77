package federation

import (
	"fmt"
	"time"

	"github.com/dantte-lp/lf-rti/internal/wire"
)

// RelayMessage forwards a MESSAGE or TIMED_MESSAGE byte-for-byte from
// src's session to header.Fed's session, per §4.4. headerBytes is the
// header's raw wire encoding (including the tag byte), already read
// from src by the caller; it is re-sent verbatim so the destination
// sees exactly what the source sent.
//
// The federation mutex is held only to look up the destination; it is
// released before any socket I/O, so neither a slow destination nor a
// slow source can stall other federates' handler goroutines. Ordering
// guarantee 1 (per-source order preserved) follows from this method
// only ever being called from src's own single handler goroutine, which
// reads src's stream strictly in order.
//
// Two different source federates can relay to the same destination
// concurrently -- each running in its own handler goroutine -- and a
// TAG or stop-consensus broadcast can target that same destination from
// yet another goroutine at the same time. The destination's sendMu is
// held for the header-plus-payload write as one unit so no two of those
// writers ever interleave their bytes on dst's connection.
func (f *Federation) RelayMessage(srcFedID uint16, header wire.MessageHeader, headerBytes []byte, payloadLen uint32, src wire.Conn, timed bool) error {
	f.mu.Lock()
	dst, ok := f.lookupConnectedDestination(header.Fed)
	timeout := f.params.TCPTimeout
	f.mu.Unlock()

	if !ok {
		if err := discardPayload(src, payloadLen, timeout); err != nil {
			return fmt.Errorf("discard dropped relay payload: %w", err)
		}
		f.metrics.MessageDropped(srcFedID, header.Fed)
		f.logger.Warn("dropped message to disconnected federate",
			"src_fed_id", srcFedID, "dst_fed_id", header.Fed, "len", payloadLen)
		return nil
	}

	dst.sendMu.Lock()
	defer dst.sendMu.Unlock()

	if err := wire.WriteFull(dst.Conn, headerBytes, timeout); err != nil {
		f.handleDisconnect(header.Fed)
		_ = discardPayload(src, payloadLen, timeout)
		return nil
	}

	if err := streamPayload(src, dst.Conn, payloadLen, timeout); err != nil {
		f.handleDisconnect(header.Fed)
		return nil
	}

	f.metrics.RelayedMessage(srcFedID, header.Fed, int(payloadLen), timed)
	return nil
}

// lookupConnectedDestination returns dst iff it is currently connected.
// Caller must hold f.mu.
func (f *Federation) lookupConnectedDestination(dstFedID uint16) (*Federate, bool) {
	if int(dstFedID) >= len(f.federates) {
		return nil, false
	}
	dst := f.federates[dstFedID]
	if dst.State == StateNotConnected || dst.State == StateStopped {
		return nil, false
	}
	return dst, true
}

// streamPayload copies exactly n bytes from src to dst in chunks of at
// most the pooled buffer's size (FedComBufferSize), so the relay hot
// path does not allocate per message and never buffers an entire large
// message in memory.
func streamPayload(src, dst wire.Conn, n uint32, timeout time.Duration) error {
	buf := wire.GetBuffer()
	defer wire.PutBuffer(buf)

	remaining := n
	for remaining > 0 {
		chunk := uint32(len(*buf))
		if remaining < chunk {
			chunk = remaining
		}
		if err := wire.ReadFull(src, (*buf)[:chunk], timeout); err != nil {
			return err
		}
		if err := wire.WriteFull(dst, (*buf)[:chunk], timeout); err != nil {
			return err
		}
		remaining -= chunk
	}
	return nil
}

// discardPayload reads and drops exactly n bytes from src, used when the
// destination is unreachable but the source's framing must still be
// preserved for its next message.
func discardPayload(src wire.Conn, n uint32, timeout time.Duration) error {
	buf := wire.GetBuffer()
	defer wire.PutBuffer(buf)

	remaining := n
	for remaining > 0 {
		chunk := uint32(len(*buf))
		if remaining < chunk {
			chunk = remaining
		}
		if err := wire.ReadFull(src, (*buf)[:chunk], timeout); err != nil {
			return err
		}
		remaining -= chunk
	}
	return nil
}
