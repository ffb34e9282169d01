package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<63 - 1}

	w := NewWriter(nil)
	for _, v := range values {
		w.WriteVarint(v)
	}

	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.ReadVarint()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.True(t, r.Empty())
}

func TestWriterReaderBytes(t *testing.T) {
	w := NewWriter(nil)
	w.WriteBytes([]byte("hello"))
	w.WriteBytes(nil)
	w.WriteBytes([]byte("world"))

	r := NewReader(w.Bytes())
	b1, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), b1)

	b2, err := r.ReadBytes()
	require.NoError(t, err)
	require.Len(t, b2, 0)

	b3, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("world"), b3)
	require.True(t, r.Empty())
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{0x80}) // continuation bit set, no following byte
	_, err := r.ReadVarint()
	require.ErrorIs(t, err, ErrTruncated)
}
