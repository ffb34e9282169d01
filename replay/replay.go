// Package replay implements a sliding-window replay filter over
// incoming frame ids (spec.md §4.2).
package replay

import "github.com/cheetah-relay/relay-go/wire"

// WindowSize is the width of the replay window, fixed to match the
// AckSender ring size (spec.md §4.2).
const WindowSize = 64

// Protection rejects frames whose ids fall at or behind the window's
// trailing edge, or that have already been seen within the window.
type Protection struct {
	highest wire.FrameId
	mask    uint64 // bit i set means (highest - i) has been seen
	started bool
}

// Admit reports whether frameId is fresh (and should be processed) or
// should be dropped as a replay or too-old frame. A frame far
// enough ahead that shifting the window would lose track of it is
// still admitted (the window simply advances); only replays and
// trailing-edge-or-older frames are rejected.
func (p *Protection) Admit(frameId wire.FrameId) bool {
	if !p.started {
		p.started = true
		p.highest = frameId
		p.mask = 1
		return true
	}

	if frameId > p.highest {
		shift := uint64(frameId - p.highest)
		if shift >= 64 {
			p.mask = 0
		} else {
			p.mask <<= shift
		}
		p.mask |= 1
		p.highest = frameId
		return true
	}

	diff := uint64(p.highest - frameId)
	if diff >= 64 {
		// Older than the window's trailing edge: reject, but this is a
		// soft error (spec.md §4.2), never fatal to the session.
		return false
	}
	bit := uint64(1) << diff
	if p.mask&bit != 0 {
		return false // already seen
	}
	p.mask |= bit
	return true
}
