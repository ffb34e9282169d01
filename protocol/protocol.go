// Package protocol implements Protocol, the per-tick aggregator that
// composes every other subsystem into the single per-connection state
// machine described by spec.md §4.9.
package protocol

import (
	"time"

	"github.com/cheetah-relay/relay-go/ack"
	"github.com/cheetah-relay/relay-go/collector"
	"github.com/cheetah-relay/relay-go/disconnect"
	"github.com/cheetah-relay/relay-go/frame"
	"github.com/cheetah-relay/relay-go/replay"
	"github.com/cheetah-relay/relay-go/retransmit"
	"github.com/cheetah-relay/relay-go/rtt"
	"github.com/cheetah-relay/relay-go/wire"
	"github.com/cheetah-relay/relay-go/wire/command"
)

// Protocol owns one logical connection: it decides what to do with an
// inbound frame and what, if anything, to send next. It is not safe
// for concurrent use; exactly one worker goroutine drives an instance
// at a time (spec.md §5).
type Protocol struct {
	Cipher *frame.Cipher

	cfg   Config
	start time.Time

	connectionId wire.ConnectionId
	nextFrameId  wire.FrameId
	frameCounter uint64

	replay        *replay.Protection
	ackSender     *ack.Sender
	retransmitter *retransmit.Retransmitter
	rtt           *rtt.Estimator
	byTimeout     *disconnect.ByTimeout
	byCommand     *disconnect.ByCommand
	keepAlive     *disconnect.KeepAlive
	inCommands    *collector.InCommands
	outCommands   *collector.OutCommands
}

// Config bundles the tunables a Protocol is constructed with
// (spec.md §6).
type Config struct {
	DisconnectTimeout time.Duration
	AckWaitDuration   time.Duration
	KeepAliveInterval time.Duration
}

// New creates a Protocol for a session that has not yet seen a frame,
// using cipher for encryption/decryption and start as the clock
// reference for RTT sampling.
func New(cfg Config, cipher *frame.Cipher, start time.Time) *Protocol {
	p := &Protocol{
		Cipher: cipher,
		cfg:    cfg,
		start:  start,
	}
	p.resetSubstate()
	return p
}

// resetSubstate reinitializes every per-connection subsystem, keeping
// cfg/start/Cipher as they were: used both by New and by
// OnFrameReceived's connection-reset path (spec.md §3 "Entity
// lifecycles").
func (p *Protocol) resetSubstate() {
	p.nextFrameId = 1
	p.frameCounter = 0
	p.replay = &replay.Protection{}
	p.ackSender = ack.NewSender()
	p.retransmitter = retransmit.New(p.cfg.DisconnectTimeout, p.cfg.AckWaitDuration)
	p.rtt = rtt.NewEstimator(p.start)
	p.byTimeout = disconnect.NewByTimeout(p.cfg.DisconnectTimeout)
	p.byCommand = disconnect.NewByCommand()
	p.keepAlive = disconnect.NewKeepAlive(p.cfg.KeepAliveInterval)
	p.inCommands = collector.NewInCommands()
	p.outCommands = collector.NewOutCommands()
}

// AddCommand enqueues an application command for transmission on the
// next frame(s) BuildNextFrame assembles.
func (p *Protocol) AddCommand(wc *command.WithContext) {
	p.outCommands.AddCommand(wc)
}

// DrainReceived returns the commands that have become application-ready
// since the last call.
func (p *Protocol) DrainReceived() []*command.WithContext {
	return p.inCommands.Drain()
}

// Disconnect schedules an application-requested disconnect, carried on
// the next outgoing frame (and every frame after, until acknowledged
// by session teardown).
func (p *Protocol) Disconnect(reason wire.DisconnectReason) {
	p.byCommand.Disconnect(reason)
}

// OnFrameReceived processes one decoded, already-decrypted inbound
// frame (spec.md §4.9 on_frame_received).
func (p *Protocol) OnFrameReceived(f *frame.Frame, now time.Time) {
	if f.ConnectionId > p.connectionId {
		p.connectionId = f.ConnectionId
		p.resetSubstate()
	} else if f.ConnectionId != p.connectionId {
		return
	}

	p.frameCounter++
	p.byTimeout.OnFrameReceived(now)
	p.retransmitter.OnFrameReceived(f)
	p.ackSender.OnFrameReceived(f, now)

	if p.replay.Admit(f.FrameId) {
		p.byCommand.OnFrameReceived(f)
		p.rtt.OnFrameReceived(f, now)
		p.inCommands.Absorb(f.Commands)
	}
}

// BuildNextFrame assembles the next outgoing frame, if anything is due
// to be sent: a pending retransmission, a due ack, queued application
// commands, a pending disconnect reason, or a keep-alive interval
// elapsing (spec.md §4.9 build_next_frame).
func (p *Protocol) BuildNextFrame(now time.Time) *frame.Frame {
	if rf := p.retransmitter.GetRetransmitFrame(now, p.nextFrameId); rf != nil {
		p.nextFrameId++
		p.keepAlive.OnFrameSent(now)
		return rf
	}

	_, disconnectPending := p.byCommand.LocalReason()
	if !(p.ackSender.Due(now) || p.outCommands.ContainsOutputData() || disconnectPending || p.keepAlive.Due(now)) {
		return nil
	}

	f := frame.New(p.connectionId, p.nextFrameId)
	p.nextFrameId++

	// Headers are assembled before commands are packed: packing needs
	// the frame's final size budget, and the retransmit queue must see
	// only the commands that actually fit, or the overflow would be
	// both requeued and retransmitted later, sending it twice.
	p.ackSender.BuildFrame(f, now)
	p.byCommand.BuildFrame(f)
	p.rtt.BuildFrame(f, now)
	p.keepAlive.BuildFrame(f)
	p.keepAlive.OnFrameSent(now)

	queued := p.outCommands.Drain()
	packed, leftover := frame.Pack(f, queued)
	for _, wc := range packed {
		f.AddCommand(wc)
	}
	p.outCommands.Requeue(leftover)

	p.retransmitter.BuildFrame(f, now)
	return f
}

// RequeueLeftover returns unsent commands (the leftover tail
// frame.Encode could not fit into the frame's size budget) to the
// front of the outgoing queue so the next BuildNextFrame retries them.
func (p *Protocol) RequeueLeftover(commands []*command.WithContext) {
	p.outCommands.Requeue(commands)
}

// IsConnected reports whether at least one frame has ever been
// received and the session is not currently disconnected.
func (p *Protocol) IsConnected(now time.Time) bool {
	_, disconnected := p.IsDisconnected(now)
	return p.frameCounter > 0 && !disconnected
}

// IsDisconnected reports the first applicable disconnect reason, in
// priority order: retransmit exhaustion, then timeout, then an
// explicit application-requested reason (local or remote).
func (p *Protocol) IsDisconnected(now time.Time) (wire.DisconnectReason, bool) {
	if p.retransmitter.IsDisconnected() {
		return wire.DisconnectByRetransmitWhenMaxCount, true
	}
	if p.byTimeout.IsDisconnected(now) {
		return wire.DisconnectByTimeout, true
	}
	if reason, ok := p.byCommand.LocalReason(); ok {
		return reason, true
	}
	if reason, ok := p.byCommand.RemoteReason(); ok {
		return reason, true
	}
	return 0, false
}

// Estimate returns the current RTT estimate, if the sample window is
// full.
func (p *Protocol) Estimate() (time.Duration, bool) {
	return p.rtt.Estimate()
}

// RetransmitOutstanding reports the number of reliable frames still
// awaiting an ack.
func (p *Protocol) RetransmitOutstanding() int {
	return p.retransmitter.Outstanding()
}

// LowCountAckCount reports the ack-ring diagnostic counter (spec.md §3
// invariant 4).
func (p *Protocol) LowCountAckCount() uint64 {
	return p.ackSender.LowCountAckCount
}
