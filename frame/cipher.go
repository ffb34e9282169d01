package frame

import (
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/cheetah-relay/relay-go/wire"
)

// Cipher wraps the session's ChaCha20-Poly1305 AEAD and derives the
// per-frame nonce deterministically from the frame id, left-padded
// with the room id, per spec.md §3's wire layout note.
type Cipher struct {
	aead   cipher.AEAD
	roomId wire.RoomId
}

// NewCipher builds a Cipher from the session's 32-byte private key.
func NewCipher(privateKey *[32]byte, roomId wire.RoomId) (*Cipher, error) {
	aead, err := chacha20poly1305.New(privateKey[:])
	if err != nil {
		return nil, fmt.Errorf("frame: new aead: %w", err)
	}
	return &Cipher{aead: aead, roomId: roomId}, nil
}

// nonce lays frame_id big-endian into the low 8 bytes of the AEAD
// nonce and the room id's low-order bytes into the remaining leading
// bytes, so that two frames in the same direction of the same session
// never reuse a nonce (spec.md §3 invariant 1).
func (c *Cipher) nonce(frameId wire.FrameId) []byte {
	size := c.aead.NonceSize()
	nonce := make([]byte, size)
	for i := 0; i < 8 && i < size; i++ {
		nonce[size-1-i] = byte(frameId >> (8 * i))
	}
	padding := size - 8
	for i := 0; i < padding; i++ {
		nonce[padding-1-i] = byte(c.roomId >> (8 * i))
	}
	return nonce
}

// Seal encrypts plaintext and appends the ciphertext (with its auth tag)
// to dst, using aad as the additional authenticated data and frameId to
// derive the nonce.
func (c *Cipher) Seal(dst, aad, plaintext []byte, frameId wire.FrameId) []byte {
	return c.aead.Seal(dst, c.nonce(frameId), plaintext, aad)
}

// Open decrypts and authenticates ciphertext.
func (c *Cipher) Open(dst, aad, ciphertext []byte, frameId wire.FrameId) ([]byte, error) {
	out, err := c.aead.Open(dst, c.nonce(frameId), ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return out, nil
}
