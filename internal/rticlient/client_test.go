package rticlient

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/dantte-lp/lf-rti/internal/tag"
	"github.com/dantte-lp/lf-rti/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestAdvanceRequestNoNeighborsSkipsRoundTrip exercises (R2): a federate
// with no upstream and no downstream gets its requested tag back
// immediately, without ever touching the (nil) connection.
func TestAdvanceRequestNoNeighborsSkipsRoundTrip(t *testing.T) {
	c := New(DefaultConfig(), nil, discardLogger())

	want := tag.New(42, 0)
	got, err := c.AdvanceRequest(context.Background(), want, nil)
	if err != nil {
		t.Fatalf("AdvanceRequest: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("AdvanceRequest() = %v, want %v", got, want)
	}
}

// TestAdvanceRequestWaitsForGrant drives a real NEXT_EVENT_TAG /
// TIME_ADVANCE_GRANT round trip over a net.Pipe standing in for the RTI
// session, and confirms AdvanceRequest blocks until the grant arrives.
func TestAdvanceRequestWaitsForGrant(t *testing.T) {
	clientSide, rtiSide := net.Pipe()
	defer clientSide.Close()
	defer rtiSide.Close()

	cfg := DefaultConfig()
	cfg.HasUpstream = true
	c := New(cfg, nil, discardLogger())
	c.conn = clientSide
	c.rawConn = clientSide

	done := make(chan struct{})
	go func() {
		defer close(done)
		tg, err := wire.ReadTag(rtiSide, 0)
		if err != nil || tg != wire.MsgNextEventTag {
			return
		}
		body := make([]byte, 12)
		if err := wire.ReadFull(rtiSide, body, 0); err != nil {
			return
		}
		_ = wire.WriteFull(rtiSide, wire.EncodeTimeAdvanceGrant(tag.New(10, 0)), 0)
	}()

	go c.listenRTI()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := c.AdvanceRequest(ctx, tag.New(10, 0), nil)
	if err != nil {
		t.Fatalf("AdvanceRequest: %v", err)
	}
	if want := tag.New(10, 0); !got.Equal(want) {
		t.Fatalf("AdvanceRequest() = %v, want %v", got, want)
	}
	<-done
}

// TestAdvanceRequestInterruptedByEarlierLocalEvent confirms the
// interrupt channel short-circuits the wait with no TAG required.
func TestAdvanceRequestInterruptedByEarlierLocalEvent(t *testing.T) {
	clientSide, rtiSide := net.Pipe()
	defer clientSide.Close()
	defer rtiSide.Close()

	cfg := DefaultConfig()
	cfg.HasDownstream = true
	c := New(cfg, nil, discardLogger())
	c.conn = clientSide
	c.rawConn = clientSide

	go func() {
		_, _ = wire.ReadTag(rtiSide, 0)
		body := make([]byte, 12)
		_, _ = io.ReadFull(rtiSide, body)
	}()

	interrupt := make(chan tag.Tag, 1)
	interrupt <- tag.New(3, 0)

	got, err := c.AdvanceRequest(context.Background(), tag.New(10, 0), interrupt)
	if err != nil {
		t.Fatalf("AdvanceRequest: %v", err)
	}
	if want := tag.New(3, 0); !got.Equal(want) {
		t.Fatalf("AdvanceRequest() = %v, want %v (interrupted)", got, want)
	}
}

// TestLogicalTagCompleteSkippedWithoutDownstream confirms no bytes are
// written when the federate has no downstream to observe the LTC.
func TestLogicalTagCompleteSkippedWithoutDownstream(t *testing.T) {
	c := New(DefaultConfig(), nil, discardLogger())
	if err := c.LogicalTagComplete(tag.New(5, 0)); err != nil {
		t.Fatalf("LogicalTagComplete with no downstream should be a no-op: %v", err)
	}
}
