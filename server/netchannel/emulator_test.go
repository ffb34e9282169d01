package netchannel

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	net.PacketConn
	received [][]byte
}

func (r *recordingConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	r.received = append(r.received, append([]byte(nil), b...))
	return len(b), nil
}

func TestEmulatorDelaysDelivery(t *testing.T) {
	rec := &recordingConn{}
	e := NewEmulator(rec, 1)
	e.RTT = 50 * time.Millisecond

	start := time.Now()
	timeNow = func() time.Time { return start }
	defer func() { timeNow = time.Now }()

	_, err := e.WriteTo([]byte("hello"), &net.UDPAddr{})
	require.NoError(t, err)

	require.NoError(t, e.Flush(start))
	require.Empty(t, rec.received) // not due yet

	require.NoError(t, e.Flush(start.Add(50*time.Millisecond)))
	require.Len(t, rec.received, 1)
	require.Equal(t, []byte("hello"), rec.received[0])
}

func TestEmulatorDropsWithProbabilityOne(t *testing.T) {
	rec := &recordingConn{}
	e := NewEmulator(rec, 1)
	e.DropProbability = 1

	_, err := e.WriteTo([]byte("gone"), &net.UDPAddr{})
	require.NoError(t, err)
	require.NoError(t, e.Flush(time.Now().Add(time.Hour)))
	require.Empty(t, rec.received)
}

func TestEmulatorDuplicatesWithProbabilityOne(t *testing.T) {
	rec := &recordingConn{}
	e := NewEmulator(rec, 1)
	e.DuplicateProbability = 1

	_, err := e.WriteTo([]byte("twice"), &net.UDPAddr{})
	require.NoError(t, err)
	require.NoError(t, e.Flush(time.Now().Add(time.Hour)))
	require.Len(t, rec.received, 2)
}
