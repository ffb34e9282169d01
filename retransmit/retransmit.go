// Package retransmit implements the Retransmitter: bounded-memory
// tracking of reliable frames until acked, rescheduling after a
// timeout, and reporting disconnect on repeat-exhaustion (spec.md §4.4).
package retransmit

import (
	"container/list"
	"time"

	"github.com/cheetah-relay/relay-go/frame"
	"github.com/cheetah-relay/relay-go/wire"
)

// DefaultAckWaitDuration is the retransmit interval absent an explicit
// override (spec.md §6 "ack_wait_duration").
const DefaultAckWaitDuration = 300 * time.Millisecond

type scheduledFrame struct {
	sentAt          time.Time
	originalFrameId wire.FrameId
	frame           *frame.Frame
	retransmitCount int
}

// Retransmitter remembers reliable frames until their ack arrives,
// reschedules them after ackWaitDuration elapses, and signals
// disconnect once a frame has been retransmitted retransmitLimit times.
type Retransmitter struct {
	queue           *list.List // of *scheduledFrame, oldest first
	waitAck         map[wire.FrameId]struct{}
	ackWait         time.Duration
	retransmitLimit int
	maxRetransmit   int
}

// New derives retransmitLimit from disconnectTimeout/ackWaitDuration,
// per spec.md §4.4.
func New(disconnectTimeout, ackWaitDuration time.Duration) *Retransmitter {
	if ackWaitDuration <= 0 {
		ackWaitDuration = DefaultAckWaitDuration
	}
	limit := int(disconnectTimeout / ackWaitDuration)
	return &Retransmitter{
		queue:           list.New(),
		waitAck:         make(map[wire.FrameId]struct{}),
		ackWait:         ackWaitDuration,
		retransmitLimit: limit,
	}
}

// BuildFrame records f for retransmission if it is reliable.
func (r *Retransmitter) BuildFrame(f *frame.Frame, now time.Time) {
	if !f.Reliable {
		return
	}
	r.queue.PushBack(&scheduledFrame{
		sentAt:          now,
		originalFrameId: f.FrameId,
		frame:           f.Clone(),
	})
	r.waitAck[f.FrameId] = struct{}{}
}

// OnFrameReceived processes every Ack header in f, removing the ids it
// cites from the wait set.
func (r *Retransmitter) OnFrameReceived(f *frame.Frame) {
	for _, h := range f.Headers.Find(wire.PredicateAck) {
		ackHeader := h.(*wire.AckHeader)
		for _, id := range ackHeader.FrameIds() {
			delete(r.waitAck, id)
		}
	}
}

// GetRetransmitFrame returns the next frame due for retransmission, if
// any, reassigning it to nextFrameId and tagging it with a Retransmit
// header citing the original id.
func (r *Retransmitter) GetRetransmitFrame(now time.Time, nextFrameId wire.FrameId) *frame.Frame {
	for e := r.queue.Front(); e != nil; e = r.queue.Front() {
		head := e.Value.(*scheduledFrame)
		if _, waiting := r.waitAck[head.originalFrameId]; !waiting {
			r.queue.Remove(e)
			continue
		}
		if now.Sub(head.sentAt) < r.ackWait {
			return nil
		}

		r.queue.Remove(e)
		head.retransmitCount++
		head.sentAt = now
		if head.retransmitCount > r.maxRetransmit {
			r.maxRetransmit = head.retransmitCount
		}
		r.queue.PushBack(head)

		retransmitted := head.frame.Clone()
		retransmitted.FrameId = nextFrameId
		retransmitted.Headers.Add(&wire.RetransmitHeader{OriginalFrameId: head.originalFrameId})
		return retransmitted
	}
	return nil
}

// IsDisconnected reports whether any frame has been retransmitted
// retransmitLimit or more times.
func (r *Retransmitter) IsDisconnected() bool {
	return r.retransmitLimit > 0 && r.maxRetransmit >= r.retransmitLimit
}

// Outstanding returns the number of frames still awaiting an ack, for
// diagnostics and the bounded-memory invariant (spec.md §8 property 4).
func (r *Retransmitter) Outstanding() int {
	return len(r.waitAck)
}
