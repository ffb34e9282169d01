// Package rtt implements RoundTripTime: piggybacked request/response
// timestamp headers and a bounded sliding-window RTT estimate
// (spec.md §4.5).
package rtt

import (
	"container/list"
	"time"

	"github.com/cheetah-relay/relay-go/frame"
	"github.com/cheetah-relay/relay-go/wire"
)

// SampleCapacity is the sliding window's fixed size; Estimate returns
// no value until the window is full (spec.md §3 invariant 6).
const SampleCapacity = 10

// Estimator maintains a bounded window of round-trip samples, derived
// from request/response header pairs that both sides piggyback on
// every outgoing frame.
//
// Both Estimator.start and the header's SelfTimeMs are measured
// against the local clock reference, so the request timestamp a peer
// echoes back needs no clock synchronization to be useful: the math
// that matters (now - self_time) always happens on the side that
// originated self_time.
type Estimator struct {
	start             time.Time
	scheduledResponse *wire.RoundTripTimeRequestHeader
	samples           *list.List // of time.Duration, oldest first
	sum               time.Duration
}

// NewEstimator returns an Estimator whose clock reference is start.
func NewEstimator(start time.Time) *Estimator {
	return &Estimator{start: start, samples: list.New()}
}

// OnFrameReceived schedules a response to any request header in f and,
// for a response header, folds the measured RTT into the window.
// Retransmitted frames are excluded from sampling: a response piggybacked
// on a retransmit may be answering either the original or the retry, so
// the elapsed time it reports is not reliable.
func (e *Estimator) OnFrameReceived(f *frame.Frame, now time.Time) {
	if f.Headers.First(wire.PredicateRetransmit) != nil {
		return
	}

	if h := f.Headers.First(wire.PredicateRoundTripTimeRequest); h != nil {
		req := h.(*wire.RoundTripTimeRequestHeader)
		e.scheduledResponse = req
	}

	if h := f.Headers.First(wire.PredicateRoundTripTimeResponse); h != nil {
		resp := h.(*wire.RoundTripTimeResponseHeader)
		current := uint64(now.Sub(e.start).Milliseconds())
		if current < resp.SelfTimeMs {
			return
		}
		sample := time.Duration(current-resp.SelfTimeMs) * time.Millisecond
		e.samples.PushBack(sample)
		e.sum += sample
		if e.samples.Len() > SampleCapacity {
			front := e.samples.Front()
			e.sum -= front.Value.(time.Duration)
			e.samples.Remove(front)
		}
	}
}

// BuildFrame stamps f with a request header carrying the local clock
// reading, and, if a peer request is pending a reply, an echoing
// response header.
func (e *Estimator) BuildFrame(f *frame.Frame, now time.Time) {
	f.Headers.Add(&wire.RoundTripTimeRequestHeader{SelfTimeMs: uint64(now.Sub(e.start).Milliseconds())})

	if e.scheduledResponse != nil {
		f.Headers.Add(&wire.RoundTripTimeResponseHeader{SelfTimeMs: e.scheduledResponse.SelfTimeMs})
		e.scheduledResponse = nil
	}
}

// Estimate returns the arithmetic mean of the window's samples, and
// false until the window holds SampleCapacity of them.
func (e *Estimator) Estimate() (time.Duration, bool) {
	if e.samples.Len() < SampleCapacity {
		return 0, false
	}
	return e.sum / time.Duration(e.samples.Len()), true
}
