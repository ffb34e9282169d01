package collector

import (
	"github.com/cheetah-relay/relay-go/channel"
	"github.com/cheetah-relay/relay-go/wire"
	"github.com/cheetah-relay/relay-go/wire/command"
)

// OutCommands holds the queue of application commands awaiting
// transmission, stamping each sequenced channel's commands with a
// monotonically increasing ChannelSequence as it is enqueued.
type OutCommands struct {
	queue     []*command.WithContext
	sequences map[channel.Key]wire.ChannelSequence
}

// NewOutCommands returns an empty OutCommands.
func NewOutCommands() *OutCommands {
	return &OutCommands{sequences: make(map[channel.Key]wire.ChannelSequence)}
}

// AddCommand enqueues wc, stamping its Sequence if its channel is
// sequenced (spec.md §4.8).
func (c *OutCommands) AddCommand(wc *command.WithContext) {
	if wc.Channel.Class.Sequenced() {
		key := wc.Channel.Key()
		next := c.sequences[key]
		wc.Sequence = next
		c.sequences[key] = next + 1
	}
	c.queue = append(c.queue, wc)
}

// ContainsOutputData reports whether any command is queued.
func (c *OutCommands) ContainsOutputData() bool {
	return len(c.queue) > 0
}

// Drain removes and returns every currently-queued command. The
// caller (Protocol.BuildNextFrame, via frame.Pack's leftover return)
// is responsible for re-enqueueing anything that did not fit in the
// frame actually sent.
func (c *OutCommands) Drain() []*command.WithContext {
	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = nil
	return out
}

// Requeue places commands back at the front of the queue, preserving
// their relative order; used for the leftover tail frame.Pack could
// not fit into the current frame's budget.
func (c *OutCommands) Requeue(commands []*command.WithContext) {
	if len(commands) == 0 {
		return
	}
	c.queue = append(commands, c.queue...)
}
