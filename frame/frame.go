// Package frame ties the wire headers (package wire) and application
// commands (package command) together into the Frame the codec
// encrypts, compresses and puts on the wire, and implements that
// codec: compression (Snappy), authenticated encryption
// (ChaCha20-Poly1305) and the command delta context.
package frame

import (
	"github.com/cheetah-relay/relay-go/wire"
	"github.com/cheetah-relay/relay-go/wire/command"
)

// Frame is one datagram's worth of protocol data.
type Frame struct {
	ConnectionId wire.ConnectionId
	FrameId      wire.FrameId
	Headers      wire.Headers
	Commands     []*command.WithContext

	// Reliable is true iff any command in Commands requires reliable
	// delivery (spec.md §3 invariant 3). Only reliable frames are
	// retained by the Retransmitter.
	Reliable bool
}

// New creates an empty outgoing frame.
func New(connectionId wire.ConnectionId, frameId wire.FrameId) *Frame {
	return &Frame{ConnectionId: connectionId, FrameId: frameId}
}

// AddCommand appends a command to the frame and updates Reliable.
func (f *Frame) AddCommand(wc *command.WithContext) {
	f.Commands = append(f.Commands, wc)
	if wc.Reliable() {
		f.Reliable = true
	}
}

// Clone makes a shallow copy of f suitable for retransmission under a
// fresh FrameId: the commands and all headers carry over, but the
// frame_id is reassigned by the caller.
func (f *Frame) Clone() *Frame {
	headers := make(wire.Headers, len(f.Headers))
	copy(headers, f.Headers)
	commands := make([]*command.WithContext, len(f.Commands))
	copy(commands, f.Commands)
	return &Frame{
		ConnectionId: f.ConnectionId,
		FrameId:      f.FrameId,
		Headers:      headers,
		Commands:     commands,
		Reliable:     f.Reliable,
	}
}
