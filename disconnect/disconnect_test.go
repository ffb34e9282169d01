package disconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cheetah-relay/relay-go/frame"
	"github.com/cheetah-relay/relay-go/wire"
)

func TestByTimeoutNotDisconnectedBeforeFirstFrame(t *testing.T) {
	bt := NewByTimeout(100 * time.Millisecond)
	require.False(t, bt.IsDisconnected(time.Now().Add(time.Hour)))
}

func TestByTimeoutTripsAfterSilence(t *testing.T) {
	bt := NewByTimeout(100 * time.Millisecond)
	start := time.Now()
	bt.OnFrameReceived(start)

	require.False(t, bt.IsDisconnected(start.Add(50*time.Millisecond)))
	require.True(t, bt.IsDisconnected(start.Add(150*time.Millisecond)))
}

func TestByTimeoutResetsOnFrame(t *testing.T) {
	bt := NewByTimeout(100 * time.Millisecond)
	start := time.Now()
	bt.OnFrameReceived(start)
	bt.OnFrameReceived(start.Add(80 * time.Millisecond))
	require.False(t, bt.IsDisconnected(start.Add(150*time.Millisecond)))
}

func TestByCommandLocalReason(t *testing.T) {
	bc := NewByCommand()
	_, ok := bc.LocalReason()
	require.False(t, ok)

	bc.Disconnect(wire.DisconnectClientStopped)
	reason, ok := bc.LocalReason()
	require.True(t, ok)
	require.Equal(t, wire.DisconnectClientStopped, reason)

	f := &frame.Frame{}
	bc.BuildFrame(f)
	h := f.Headers.First(wire.PredicateDisconnect)
	require.NotNil(t, h)
	require.Equal(t, wire.DisconnectClientStopped, h.(*wire.DisconnectHeader).Reason)
}

func TestByCommandRemoteReason(t *testing.T) {
	bc := NewByCommand()
	f := &frame.Frame{}
	f.Headers.Add(&wire.DisconnectHeader{Reason: wire.DisconnectRoomDeleted})
	bc.OnFrameReceived(f)

	reason, ok := bc.RemoteReason()
	require.True(t, ok)
	require.Equal(t, wire.DisconnectRoomDeleted, reason)
}

func TestKeepAliveDueAfterInterval(t *testing.T) {
	ka := NewKeepAlive(50 * time.Millisecond)
	start := time.Now()

	require.True(t, ka.Due(start)) // never sent yet

	ka.OnFrameSent(start)
	require.False(t, ka.Due(start.Add(10*time.Millisecond)))
	require.True(t, ka.Due(start.Add(60*time.Millisecond)))
}

func TestKeepAliveBuildFrameAddsHeader(t *testing.T) {
	ka := NewKeepAlive(50 * time.Millisecond)
	f := &frame.Frame{}
	ka.BuildFrame(f)
	require.NotNil(t, f.Headers.First(func(h wire.Header) bool {
		_, ok := h.(*wire.KeepAliveHeader)
		return ok
	}))
}
