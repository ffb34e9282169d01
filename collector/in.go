// Package collector implements the two per-session command queues that
// sit between the wire and the application: InCommandsCollector
// reorders/sequences inbound commands per channel discipline
// (spec.md §4.7), OutCommandsCollector stamps and packs outgoing ones
// (spec.md §4.8).
package collector

import (
	"sort"

	"github.com/cheetah-relay/relay-go/channel"
	"github.com/cheetah-relay/relay-go/wire"
	"github.com/cheetah-relay/relay-go/wire/command"
)

// InCommands reorders and sequences inbound commands according to
// their channel's discipline, and hands application-ready commands to
// the consumer via Drain.
type InCommands struct {
	ready []*command.WithContext
	state map[channel.Key]*inChannelState
}

type inChannelState struct {
	// ReliableOrdered: buffered out-of-order arrivals, and the next
	// sequence number expected to deliver contiguously.
	buffered     map[wire.ChannelSequence]*command.WithContext
	nextExpected wire.ChannelSequence

	// ReliableSequence / UnreliableOrdered: the last delivered sequence
	// number; anything not strictly greater is discarded.
	lastDelivered wire.ChannelSequence
	everDelivered bool
}

// NewInCommands returns an empty InCommands.
func NewInCommands() *InCommands {
	return &InCommands{state: make(map[channel.Key]*inChannelState)}
}

// Absorb processes a frame's decoded commands, appending any that
// become deliverable (immediately, or because they fill a gap) to the
// ready queue.
func (c *InCommands) Absorb(commands []*command.WithContext) {
	for _, wc := range commands {
		c.absorbOne(wc)
	}
}

func (c *InCommands) absorbOne(wc *command.WithContext) {
	switch wc.Channel.Class {
	case channel.ReliableUnordered, channel.UnreliableUnordered:
		c.ready = append(c.ready, wc)

	case channel.ReliableOrdered:
		st := c.stateFor(wc.Channel.Key())
		if wc.Sequence < st.nextExpected {
			return // already delivered
		}
		if st.buffered == nil {
			st.buffered = make(map[wire.ChannelSequence]*command.WithContext)
		}
		st.buffered[wc.Sequence] = wc
		for {
			next, ok := st.buffered[st.nextExpected]
			if !ok {
				break
			}
			c.ready = append(c.ready, next)
			delete(st.buffered, st.nextExpected)
			st.nextExpected++
		}

	case channel.ReliableSequence, channel.UnreliableOrdered:
		st := c.stateFor(wc.Channel.Key())
		if st.everDelivered && wc.Sequence <= st.lastDelivered {
			return // superseded by a later arrival already delivered
		}
		st.lastDelivered = wc.Sequence
		st.everDelivered = true
		c.ready = append(c.ready, wc)
	}
}

func (c *InCommands) stateFor(key channel.Key) *inChannelState {
	st, ok := c.state[key]
	if !ok {
		st = &inChannelState{}
		c.state[key] = st
	}
	return st
}

// Drain returns the snapshot of commands that have become
// application-ready since the last call, and clears it.
func (c *InCommands) Drain() []*command.WithContext {
	if len(c.ready) == 0 {
		return nil
	}
	out := c.ready
	c.ready = nil
	return out
}

// pendingSequences is a test/diagnostic helper returning the sorted
// buffered sequence numbers still waiting on a gap to fill, for key.
func (c *InCommands) pendingSequences(key channel.Key) []wire.ChannelSequence {
	st, ok := c.state[key]
	if !ok || st.buffered == nil {
		return nil
	}
	out := make([]wire.ChannelSequence, 0, len(st.buffered))
	for seq := range st.buffered {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
