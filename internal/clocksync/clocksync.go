// Package clocksync implements the PTP-style T1/T3/T4 (+coded probe)
// clock-synchronization exchange between the RTI and its federates. The RTI side
// (Driver/RunAdmissionRounds) only needs to ship correctly-framed,
// timely observations; the offset arithmetic that actually disciplines
// a clock is a federate-side concern (EstimateOffset/ShouldDiscard),
// used by package rticlient.
package clocksync

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/dantte-lp/lf-rti/internal/wire"
)

// MaxDiscardedPerRound bounds how many out-of-order or malformed
// datagrams a steady-state round tolerates before giving up on that
// federate for this period.
const MaxDiscardedPerRound = 5

// RunAdmissionRounds performs the fixed number of in-band TCP T1/T3/T4
// rounds run during admission to seed a federate's initial offset
// estimate, even though its UDP address (if any) is not yet in use:
// seeding the estimate before the federate is granted its start time
// avoids an unsynchronized clock for the first steady-state round.
//
// The RTI does not compute or retain an offset here; it only runs the
// wire exchange so the federate (the other end of conn) can compute its
// own estimate.
func RunAdmissionRounds(conn wire.Conn, timeout time.Duration, rounds int, fedID uint16, logger *slog.Logger) error {
	for i := 0; i < rounds; i++ {
		if err := runOneTCPRound(conn, timeout); err != nil {
			logger.Warn("clock-sync admission round failed", "fed_id", fedID, "round", i, "err", err)
			return err
		}
	}
	return nil
}

// runOneTCPRound sends T1, waits for the federate's T3, then sends T4
// and T4_CODED_PROBE back-to-back.
func runOneTCPRound(conn wire.Conn, timeout time.Duration) error {
	t1 := time.Now()
	if err := wire.WriteFull(conn, wire.EncodePhysClockT1T4(t1), timeout); err != nil {
		return err
	}

	if _, err := wire.ReadTag(conn, timeout); err != nil {
		return err
	}
	body := make([]byte, 12)
	if err := wire.ReadFull(conn, body, timeout); err != nil {
		return err
	}
	// Decode discards the federate's own reading; the RTI does not
	// need it, only the federate does.
	_, _ = wire.DecodePhysClockT3Body(body)

	t4 := time.Now()
	if err := wire.WriteFull(conn, wire.EncodePhysClockT1T4(t4), timeout); err != nil {
		return err
	}
	probe := time.Now()
	return wire.WriteFull(conn, wire.EncodePhysClockT1T4(probe), timeout)
}

// Target is one federate's clock-sync UDP endpoint.
type Target struct {
	FedID uint16
	Addr  *net.UDPAddr
}

// TargetLister supplies the current set of clock-sync-enabled,
// connected federates. Implemented by *federation.Federation; declared
// here (rather than imported) so this package has no dependency on
// package federation.
type TargetLister interface {
	ClockSyncTargets() []Target
}

// SampleRecorder receives one round's observed round-trip time per
// federate for metrics.
type SampleRecorder interface {
	ClockSyncSample(fedID uint16, roundTrip time.Duration)
}

// Driver runs the steady-state background clock-sync loop: one UDP
// round with each target every period.
type Driver struct {
	conn     *net.UDPConn
	lister   TargetLister
	metrics  SampleRecorder
	period   time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDriver constructs a Driver. metrics may be nil, in which case
// samples are discarded.
func NewDriver(conn *net.UDPConn, lister TargetLister, metrics SampleRecorder, period, timeout time.Duration, logger *slog.Logger) *Driver {
	return &Driver{conn: conn, lister: lister, metrics: metrics, period: period, timeout: timeout, logger: logger}
}

// Run ticks every d.period, performing one round per clock-sync-enabled
// target, until ctx is canceled, and then returns ctx.Err(). A failed
// round for one federate is skipped rather than aborting the whole
// driver.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, target := range d.lister.ClockSyncTargets() {
				d.runOneUDPRound(target)
			}
		}
	}
}

// runOneUDPRound performs one T1/T3/T4 exchange over UDP with target,
// tolerating up to MaxDiscardedPerRound out-of-order datagrams before
// giving up on this federate for this period.
func (d *Driver) runOneUDPRound(target Target) {
	t1 := time.Now()
	if _, err := d.conn.WriteToUDP(wire.EncodePhysClockT1T4(t1), target.Addr); err != nil {
		d.logger.Warn("clock-sync T1 send failed", "fed_id", target.FedID, "err", err)
		return
	}

	t3, ok := d.awaitT3(target)
	if !ok {
		return
	}
	_ = t3

	t4 := time.Now()
	if _, err := d.conn.WriteToUDP(wire.EncodePhysClockT1T4(t4), target.Addr); err != nil {
		return
	}
	probe := time.Now()
	if _, err := d.conn.WriteToUDP(wire.EncodePhysClockT1T4(probe), target.Addr); err != nil {
		return
	}

	if d.metrics != nil {
		d.metrics.ClockSyncSample(target.FedID, probe.Sub(t1))
	}
}

// awaitT3 reads datagrams until one is a well-formed T3 from target's
// federate id, discarding up to MaxDiscardedPerRound others.
func (d *Driver) awaitT3(target Target) (time.Time, bool) {
	buf := make([]byte, 64)
	for discarded := 0; discarded < MaxDiscardedPerRound; discarded++ {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return time.Time{}, false
		}
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return time.Time{}, false
		}
		if n < 1+12 || wire.MsgType(buf[0]) != wire.MsgPhysClock {
			continue
		}
		t3, fedID := wire.DecodePhysClockT3Body(buf[1:13])
		if uint16(fedID) != target.FedID {
			continue
		}
		return t3, true
	}
	d.logger.Warn("clock-sync round discarded: no valid T3", "fed_id", target.FedID)
	return time.Time{}, false
}
