// Package wire implements the on-wire building blocks of the relay
// protocol: ids, headers and the varint Writer/Reader. The command
// taxonomy and delta context live in wire/command, and the
// AEAD/compression codec in package frame.
package wire

// ConnectionId is selected by the initiator and increases monotonically
// across reconnects of the same session. A peer observing a larger
// ConnectionId than its current one treats it as a fresh session and
// resets all protocol substate.
type ConnectionId uint64

// FrameId is strictly increasing per Protocol and starts at 1. Zero is
// reserved to mean "no frame" (used as a sentinel in the ack ring).
type FrameId uint64

// NotExistFrameId marks an empty ack-ring slot.
const NotExistFrameId FrameId = 0

// ChannelGroup is an opaque grouping tag for ordering/sequencing scope.
type ChannelGroup uint8

// ChannelSequence is a per (channel class, group) counter stamped on
// outgoing commands of sequenced channels.
type ChannelSequence uint32

// MemberId identifies a room member.
type MemberId uint16

// RoomId identifies a room.
type RoomId uint64

// MemberAndRoomId is the server-side session key.
type MemberAndRoomId struct {
	MemberId MemberId
	RoomId   RoomId
}

// MaxFrameSize is the logical MTU: the maximum size, in bytes, of a
// frame's encrypted+compressed payload window.
const MaxFrameSize = 1024

// MaxDatagramSize is the buffer capacity used for socket I/O, which
// leaves headroom over MaxFrameSize for ids and headers.
const MaxDatagramSize = 2048

// ProtocolVersion is embedded at the start of every frame. A mismatch
// is fatal to that frame: it is dropped silently and logged, never
// causing a panic or a session disconnect.
const ProtocolVersion byte = 1
