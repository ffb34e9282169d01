// Package ack implements AckSender: the ring buffer of recently
// received reliable frame ids and the compact Ack headers built from
// it (spec.md §4.3).
package ack

import (
	"sort"
	"time"

	"github.com/cheetah-relay/relay-go/frame"
	"github.com/cheetah-relay/relay-go/wire"
)

// BufferSize is the ring's capacity.
const BufferSize = 64

// AlertLowCountAck is the minimum number of times a frame id's ack
// should have been sent before its ring slot is recycled; falling
// short increments LowCountAckCount as a delivery-quality diagnostic
// (spec.md §3 invariant 4, SPEC_FULL.md supplemented feature #2).
const AlertLowCountAck = 2

// ScheduleSendTime is how soon after a reliable frame arrives an ack
// must go out.
const ScheduleSendTime = 1 * time.Millisecond

// Sender maintains the ring and the scheduling state for outgoing Ack
// headers.
type Sender struct {
	frames    [BufferSize]wire.FrameId
	ackCounts [BufferSize]uint8
	next      int

	dueAt time.Time
	due   bool

	// LowCountAckCount counts ring slots that were recycled before
	// their prior frame id had been acked AlertLowCountAck times.
	LowCountAckCount uint64
}

// NewSender returns an empty Sender.
func NewSender() *Sender {
	return &Sender{}
}

// Due reports whether an ack is scheduled to go out by now.
func (s *Sender) Due(now time.Time) bool {
	return s.due && !now.Before(s.dueAt)
}

// OnFrameReceived records a just-received reliable frame's id (the
// original id if the frame carries a Retransmit header) into the ring
// and schedules an ack.
func (s *Sender) OnFrameReceived(f *frame.Frame, now time.Time) {
	if !f.Reliable {
		return
	}

	frameId := f.FrameId
	if h := f.Headers.First(wire.PredicateRetransmit); h != nil {
		frameId = h.(*wire.RetransmitHeader).OriginalFrameId
	}

	slot := s.next
	if s.frames[slot] != wire.NotExistFrameId && s.ackCounts[slot] < AlertLowCountAck {
		s.LowCountAckCount++
	}
	s.frames[slot] = frameId
	s.ackCounts[slot] = 0

	s.next++
	if s.next == BufferSize {
		s.next = 0
	}

	if !s.due {
		s.due = true
		s.dueAt = now.Add(ScheduleSendTime)
	}
}

// BuildFrame folds the ring into one or more AckHeaders and appends
// them to f, incrementing the ack count of every slot actually cited.
func (s *Sender) BuildFrame(f *frame.Frame, now time.Time) {
	s.due = false

	slots := make([]int, 0, BufferSize)
	for i, id := range s.frames {
		if id != wire.NotExistFrameId {
			slots = append(slots, i)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return s.frames[slots[i]] < s.frames[slots[j]] })

	var current *wire.AckHeader
	for _, slot := range slots {
		if s.ackCounts[slot] < 254 {
			s.ackCounts[slot]++
		}
		id := s.frames[slot]

		if current == nil {
			h := &wire.AckHeader{StartFrameId: id, Mask: 1}
			current = h
			continue
		}
		if !current.StoreFrameId(id) {
			f.Headers.Add(current)
			h := &wire.AckHeader{StartFrameId: id, Mask: 1}
			current = h
		}
	}
	if current != nil {
		f.Headers.Add(current)
	}
}
