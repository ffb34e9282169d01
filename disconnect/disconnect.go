// Package disconnect implements the three session-liveness mechanisms
// described in spec.md §4.6: timeout detection, explicit
// application-requested disconnect, and keep-alive emission.
package disconnect

import (
	"time"

	"github.com/cheetah-relay/relay-go/frame"
	"github.com/cheetah-relay/relay-go/wire"
)

// ByTimeout tracks the last time any frame was received and declares
// the session lost once disconnectTimeout has elapsed since.
type ByTimeout struct {
	timeout       time.Duration
	lastFrameTime time.Time
	started       bool
}

// NewByTimeout returns a ByTimeout with no frame observed yet: it will
// not trip until the first frame arrives and starts the clock.
func NewByTimeout(timeout time.Duration) *ByTimeout {
	return &ByTimeout{timeout: timeout}
}

// OnFrameReceived resets the idle clock.
func (t *ByTimeout) OnFrameReceived(now time.Time) {
	t.started = true
	t.lastFrameTime = now
}

// IsDisconnected reports whether disconnectTimeout has elapsed since
// the last received frame.
func (t *ByTimeout) IsDisconnected(now time.Time) bool {
	if !t.started {
		return false
	}
	return now.Sub(t.lastFrameTime) > t.timeout
}

// ByCommand carries an application-requested disconnect reason to the
// peer and surfaces one received from the peer.
type ByCommand struct {
	localReason  wire.DisconnectReason
	localPending bool
	remoteReason wire.DisconnectReason
	remoteSet    bool
}

// NewByCommand returns a ByCommand with no reason pending.
func NewByCommand() *ByCommand {
	return &ByCommand{}
}

// Disconnect schedules reason to be carried on the next outgoing
// frame. reason must be one of the application-requested values;
// local-only reasons (ByTimeout, ByRetransmitWhenMaxCount) are never
// sent over the wire by this type.
func (c *ByCommand) Disconnect(reason wire.DisconnectReason) {
	c.localReason = reason
	c.localPending = true
}

// LocalReason reports the reason passed to Disconnect, if any is
// currently pending or already stamped.
func (c *ByCommand) LocalReason() (wire.DisconnectReason, bool) {
	if !c.localPending && c.localReason == wire.DisconnectNone {
		return 0, false
	}
	return c.localReason, true
}

// OnFrameReceived stores any Disconnect header the peer sent.
func (c *ByCommand) OnFrameReceived(f *frame.Frame) {
	if h := f.Headers.First(wire.PredicateDisconnect); h != nil {
		c.remoteReason = h.(*wire.DisconnectHeader).Reason
		c.remoteSet = true
	}
}

// RemoteReason reports the reason the peer disconnected with, if any.
func (c *ByCommand) RemoteReason() (wire.DisconnectReason, bool) {
	return c.remoteReason, c.remoteSet
}

// BuildFrame stamps f with the pending local disconnect reason, if
// any. The reason keeps being stamped on every subsequent frame once
// pending: the peer may miss any single datagram.
func (c *ByCommand) BuildFrame(f *frame.Frame) {
	if c.localPending {
		f.Headers.Add(&wire.DisconnectHeader{Reason: c.localReason})
	}
}

// KeepAlive emits an empty frame when nothing else would otherwise be
// sent for interval, so NAT mappings stay open and the peer's
// DisconnectByTimeout does not trip on an otherwise-healthy link.
type KeepAlive struct {
	interval     time.Duration
	lastSentTime time.Time
	started      bool
}

// NewKeepAlive returns a KeepAlive that fires every interval.
func NewKeepAlive(interval time.Duration) *KeepAlive {
	return &KeepAlive{interval: interval}
}

// Due reports whether interval has elapsed since the last frame
// (any frame, not just a keep-alive) was sent.
func (k *KeepAlive) Due(now time.Time) bool {
	if !k.started {
		return true
	}
	return now.Sub(k.lastSentTime) >= k.interval
}

// OnFrameSent resets the idle clock; call for every outgoing frame,
// not only ones this type itself triggered.
func (k *KeepAlive) OnFrameSent(now time.Time) {
	k.started = true
	k.lastSentTime = now
}

// BuildFrame stamps f with a KeepAliveHeader.
func (k *KeepAlive) BuildFrame(f *frame.Frame) {
	f.Headers.Add(&wire.KeepAliveHeader{})
}
