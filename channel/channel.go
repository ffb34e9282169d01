// Package channel defines the reliability/ordering disciplines
// (spec.md §3 "Channels") attached to every application command.
package channel

import (
	"fmt"

	"github.com/cheetah-relay/relay-go/wire"
)

// Class is one of the five reliability/ordering disciplines.
type Class byte

const (
	// ReliableUnordered is delivered at least once; order unconstrained.
	ReliableUnordered Class = iota
	// ReliableOrdered is delivered exactly once in emission order
	// within its group; gaps wait for the missing command.
	ReliableOrdered
	// ReliableSequence is delivered exactly once in emission order;
	// later sequence numbers invalidate earlier undelivered ones.
	ReliableSequence
	// UnreliableUnordered is best effort, no ordering.
	UnreliableUnordered
	// UnreliableOrdered drops anything older than the highest
	// delivered sequence number in its group.
	UnreliableOrdered
)

func (c Class) String() string {
	switch c {
	case ReliableUnordered:
		return "ReliableUnordered"
	case ReliableOrdered:
		return "ReliableOrdered"
	case ReliableSequence:
		return "ReliableSequence"
	case UnreliableUnordered:
		return "UnreliableUnordered"
	case UnreliableOrdered:
		return "UnreliableOrdered"
	default:
		return fmt.Sprintf("Class(%d)", byte(c))
	}
}

// Reliable reports whether commands on this class require at-least-once
// delivery (and therefore make the frame carrying them subject to
// retransmission).
func (c Class) Reliable() bool {
	switch c {
	case ReliableUnordered, ReliableOrdered, ReliableSequence:
		return true
	default:
		return false
	}
}

// Sequenced reports whether commands on this class are stamped with a
// ChannelSequence number by the OutCommandsCollector.
func (c Class) Sequenced() bool {
	switch c {
	case ReliableOrdered, ReliableSequence, UnreliableOrdered:
		return true
	default:
		return false
	}
}

// Grouped reports whether this class is scoped by a ChannelGroup (as
// opposed to being global/ungrouped).
func (c Class) Grouped() bool {
	return c.Sequenced()
}

// wire tags for the 5 channel classes, per spec.md §4.1's "1-byte
// header" channel_type field.
const (
	wireReliableUnordered   = 0
	wireReliableOrdered     = 1
	wireReliableSequence    = 2
	wireUnreliableUnordered = 3
	wireUnreliableOrdered   = 4
)

// WireTag returns the on-wire tag for c.
func (c Class) WireTag() byte {
	switch c {
	case ReliableUnordered:
		return wireReliableUnordered
	case ReliableOrdered:
		return wireReliableOrdered
	case ReliableSequence:
		return wireReliableSequence
	case UnreliableUnordered:
		return wireUnreliableUnordered
	case UnreliableOrdered:
		return wireUnreliableOrdered
	default:
		panic(fmt.Sprintf("channel: invalid class %d", c))
	}
}

// ClassFromWireTag decodes a wire tag back into a Class.
func ClassFromWireTag(tag byte) (Class, error) {
	switch tag {
	case wireReliableUnordered:
		return ReliableUnordered, nil
	case wireReliableOrdered:
		return ReliableOrdered, nil
	case wireReliableSequence:
		return ReliableSequence, nil
	case wireUnreliableUnordered:
		return UnreliableUnordered, nil
	case wireUnreliableOrdered:
		return UnreliableOrdered, nil
	default:
		return 0, fmt.Errorf("channel: unknown wire tag %d", tag)
	}
}

// Channel is the full reliability+ordering discipline tag attached to a
// command: a Class plus, for grouped classes, the ChannelGroup scoping
// its ordering/sequencing state.
type Channel struct {
	Class Class
	Group wire.ChannelGroup
}

// Key identifies the (class, group) scope an OutCommandsCollector or
// InCommandsCollector tracks sequencing/ordering state for.
type Key struct {
	Class Class
	Group wire.ChannelGroup
}

// Key returns the (class, group) scope of this channel.
func (c Channel) Key() Key {
	return Key{Class: c.Class, Group: c.Group}
}
