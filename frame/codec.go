package frame

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/cheetah-relay/relay-go/wire"
	"github.com/cheetah-relay/relay-go/wire/command"
)

// DecodeMeta reads the plaintext prefix of a received datagram: the
// protocol version byte, the ids, and the header vector. The returned
// offset is where the encrypted body begins; it also doubles as the
// AAD length for DecodeBody.
func DecodeMeta(buf []byte) (connectionId wire.ConnectionId, frameId wire.FrameId, headers wire.Headers, bodyOffset int, err error) {
	if len(buf) == 0 {
		return 0, 0, nil, 0, fmt.Errorf("%w: empty datagram", ErrHeaderDeserialize)
	}
	if buf[0] != wire.ProtocolVersion {
		return 0, 0, nil, 0, fmt.Errorf("%w: got %d want %d", ErrProtocolVersion, buf[0], wire.ProtocolVersion)
	}
	r := wire.NewReader(buf[1:])

	connId, err := r.ReadVarint()
	if err != nil {
		return 0, 0, nil, 0, fmt.Errorf("%w: connection id: %v", ErrHeaderDeserialize, err)
	}
	fId, err := r.ReadVarint()
	if err != nil {
		return 0, 0, nil, 0, fmt.Errorf("%w: frame id: %v", ErrHeaderDeserialize, err)
	}
	hdrs, err := wire.DecodeHeaders(r)
	if err != nil {
		return 0, 0, nil, 0, fmt.Errorf("%w: headers: %v", ErrHeaderDeserialize, err)
	}
	return wire.ConnectionId(connId), wire.FrameId(fId), hdrs, 1 + r.Pos(), nil
}

// DecodeBody decrypts, decompresses and decodes the command vector
// that follows the plaintext prefix. aad must be exactly the plaintext
// prefix bytes DecodeMeta consumed (buf[:bodyOffset]).
func DecodeBody(aad []byte, body []byte, cipher *Cipher, frameId wire.FrameId) ([]*command.WithContext, error) {
	compressed, err := cipher.Open(nil, aad, body, frameId)
	if err != nil {
		return nil, err
	}

	decompressed, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}

	r := wire.NewReader(decompressed)
	ctx := &command.Context{}
	var commands []*command.WithContext
	for !r.Empty() {
		wc, err := ctx.ReadNext(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCommandDeserialize, err)
		}
		commands = append(commands, wc)
	}
	return commands, nil
}

// Decode is the convenience composition of DecodeMeta+DecodeBody used
// by callers (like Protocol.OnFrameReceived) that want the whole frame
// at once.
func Decode(buf []byte, cipher *Cipher) (*Frame, error) {
	connId, frameId, headers, bodyOffset, err := DecodeMeta(buf)
	if err != nil {
		return nil, err
	}
	commands, err := DecodeBody(buf[:bodyOffset], buf[bodyOffset:], cipher, frameId)
	if err != nil {
		return nil, err
	}
	f := &Frame{ConnectionId: connId, FrameId: frameId, Headers: headers, Commands: commands}
	for _, c := range commands {
		if c.Reliable() {
			f.Reliable = true
			break
		}
	}
	return f, nil
}

// PrefixLen returns the encoded size of f's plaintext prefix (protocol
// version byte, ids, and header vector) — the budget Pack and Encode
// must fit the command body's wire.MaxFrameSize allowance against.
func PrefixLen(f *Frame) int {
	w := wire.NewWriter(nil)
	_ = w.WriteByte(wire.ProtocolVersion)
	w.WriteVarint(uint64(f.ConnectionId))
	w.WriteVarint(uint64(f.FrameId))
	wire.EncodeHeaders(f.Headers, w)
	return w.Len()
}

// Pack selects the prefix of commands that fits within f's remaining
// size budget once its ids and headers are accounted for. Callers that
// assemble a frame's headers before its commands (Protocol.BuildNextFrame)
// use this to trim and requeue the overflow before recording the frame
// for retransmission, so a retransmitted copy never carries commands
// that were also separately requeued and resent in a later frame.
func Pack(f *Frame, commands []*command.WithContext) (packed, leftover []*command.WithContext) {
	return packCommands(commands, wire.MaxFrameSize-PrefixLen(f))
}

// Encode serializes f into out: plaintext ids+headers, then the
// snappy-compressed, ChaCha20-Poly1305-encrypted command body. When
// the encoded size would exceed wire.MaxFrameSize, Encode packs
// commands greedily and returns the leftover commands that did not
// fit so the caller (OutCommandsCollector) can retain them for the
// next frame.
func Encode(f *Frame, cipher *Cipher, out []byte) (n int, leftover []*command.WithContext, err error) {
	w := wire.NewWriter(out[:0])
	_ = w.WriteByte(wire.ProtocolVersion)
	w.WriteVarint(uint64(f.ConnectionId))
	w.WriteVarint(uint64(f.FrameId))
	wire.EncodeHeaders(f.Headers, w)
	prefixLen := w.Len()

	packed, leftover := Pack(f, f.Commands)

	scratch := wire.NewWriter(nil)
	ctx := &command.Context{}
	for _, wc := range packed {
		if err := ctx.WriteNext(scratch, wc); err != nil {
			return 0, nil, fmt.Errorf("frame: encode command: %w", err)
		}
	}

	compressed := snappy.Encode(nil, scratch.Bytes())
	buf := w.Bytes()
	aad := append([]byte(nil), buf[:prefixLen]...)
	sealed := cipher.Seal(buf, aad, compressed, f.FrameId)
	return len(sealed), leftover, nil
}

// packCommands greedily selects a prefix of commands whose *uncompressed*
// encoded size fits within budget, erring on the side of a
// conservative per-command size estimate since compression ratio is
// unknown ahead of encoding. Reliable commands are packed before
// unreliable ones so a frame under memory/size pressure degrades
// unreliable traffic first (spec.md §4.8).
func packCommands(commands []*command.WithContext, budget int) (packed, leftover []*command.WithContext) {
	reliable := make([]*command.WithContext, 0, len(commands))
	unreliable := make([]*command.WithContext, 0, len(commands))
	for _, c := range commands {
		if c.Reliable() {
			reliable = append(reliable, c)
		} else {
			unreliable = append(unreliable, c)
		}
	}
	ordered := append(reliable, unreliable...)

	used := 0
	i := 0
	for ; i < len(ordered); i++ {
		estimate := estimateSize(ordered[i])
		if used+estimate > budget {
			break
		}
		used += estimate
	}
	return ordered[:i], ordered[i:]
}

// estimateSize is a conservative upper bound on a command's encoded
// size: 2-byte header plus a generous allowance for ids/values. Because
// the estimate is taken before compression and errs high, packCommands
// can leave part of the budget unused.
func estimateSize(wc *command.WithContext) int {
	const headerSize = 2
	const idAllowance = 32
	payload := 8
	if raw, ok := wc.Command.(interface{ RawLen() int }); ok {
		payload = raw.RawLen()
	}
	return headerSize + idAllowance + payload
}
