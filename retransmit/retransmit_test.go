package retransmit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cheetah-relay/relay-go/frame"
	"github.com/cheetah-relay/relay-go/wire"
)

func TestRetransmitterWaitsBeforeRetransmitting(t *testing.T) {
	r := New(60*time.Second, 300*time.Millisecond)
	start := time.Now()

	f := &frame.Frame{FrameId: 1, Reliable: true}
	r.BuildFrame(f, start)
	require.Equal(t, 1, r.Outstanding())

	require.Nil(t, r.GetRetransmitFrame(start.Add(100*time.Millisecond), 2))

	retransmitted := r.GetRetransmitFrame(start.Add(300*time.Millisecond), 2)
	require.NotNil(t, retransmitted)
	require.Equal(t, wire.FrameId(2), retransmitted.FrameId)

	h := retransmitted.Headers.First(wire.PredicateRetransmit)
	require.NotNil(t, h)
	require.Equal(t, wire.FrameId(1), h.(*wire.RetransmitHeader).OriginalFrameId)
}

func TestRetransmitterAckRemovesFromWaitSet(t *testing.T) {
	r := New(60*time.Second, 300*time.Millisecond)
	start := time.Now()

	f := &frame.Frame{FrameId: 1, Reliable: true}
	r.BuildFrame(f, start)

	ackFrame := &frame.Frame{}
	ackFrame.Headers.Add(&wire.AckHeader{StartFrameId: 1, Mask: 1})
	r.OnFrameReceived(ackFrame)

	require.Equal(t, 0, r.Outstanding())
	require.Nil(t, r.GetRetransmitFrame(start.Add(time.Second), 2))
}

func TestRetransmitterSkipsUnreliableFrames(t *testing.T) {
	r := New(60*time.Second, 300*time.Millisecond)
	f := &frame.Frame{FrameId: 1, Reliable: false}
	r.BuildFrame(f, time.Now())
	require.Equal(t, 0, r.Outstanding())
}

func TestRetransmitterDisconnectsAfterLimitExceeded(t *testing.T) {
	ackWait := 10 * time.Millisecond
	r := New(100*time.Millisecond, ackWait) // retransmitLimit = 10
	start := time.Now()

	f := &frame.Frame{FrameId: 1, Reliable: true}
	r.BuildFrame(f, start)

	next := wire.FrameId(2)
	now := start
	for i := 0; i < 11; i++ {
		now = now.Add(ackWait)
		got := r.GetRetransmitFrame(now, next)
		require.NotNil(t, got)
		next++
	}
	require.True(t, r.IsDisconnected())
}
