package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cheetah-relay/relay-go/wire"
)

func testKey() *[32]byte {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	return &key
}

func TestCipherSealOpenRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey(), wire.RoomId(9))
	require.NoError(t, err)

	aad := []byte("frame-prefix")
	plaintext := []byte("hello room")

	sealed := c.Seal(nil, aad, plaintext, wire.FrameId(1))
	opened, err := c.Open(nil, aad, sealed, wire.FrameId(1))
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestCipherNonceUniquePerFrameId(t *testing.T) {
	c, err := NewCipher(testKey(), wire.RoomId(1))
	require.NoError(t, err)
	require.NotEqual(t, c.nonce(1), c.nonce(2))
}

func TestCipherRejectsWrongFrameId(t *testing.T) {
	c, err := NewCipher(testKey(), wire.RoomId(1))
	require.NoError(t, err)

	sealed := c.Seal(nil, []byte("aad"), []byte("data"), wire.FrameId(5))
	_, err = c.Open(nil, []byte("aad"), sealed, wire.FrameId(6))
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestCipherRejectsTamperedAad(t *testing.T) {
	c, err := NewCipher(testKey(), wire.RoomId(1))
	require.NoError(t, err)

	sealed := c.Seal(nil, []byte("aad-1"), []byte("data"), wire.FrameId(5))
	_, err = c.Open(nil, []byte("aad-2"), sealed, wire.FrameId(5))
	require.ErrorIs(t, err, ErrDecrypt)
}
