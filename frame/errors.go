package frame

import "errors"

// Decode errors are always recovered locally: the frame is dropped and
// logged, and no session state changes (spec.md §7).
var (
	ErrHeaderDeserialize   = errors.New("frame: header deserialize error")
	ErrProtocolVersion     = errors.New("frame: protocol version mismatch")
	ErrDecrypt             = errors.New("frame: decrypt error")
	ErrDecompress          = errors.New("frame: decompress error")
	ErrCommandDeserialize  = errors.New("frame: command deserialize error")
)
