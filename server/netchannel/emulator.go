package netchannel

import (
	"container/heap"
	"math/rand"
	"net"
	"sync"
	"time"
)

// Emulator wraps a net.PacketConn and reorders/delays/drops/
// duplicates datagrams passing through it, grounded on
// original_source's NetworkLatencyEmulator (server/relay/Common/src/network/emulator.rs).
// It is used only from tests; the protocol scenario tests do not route
// through it.
type Emulator struct {
	net.PacketConn

	mu sync.Mutex

	// DropProbability is the chance, in [0,1], that an outbound write
	// is discarded instead of scheduled.
	DropProbability float64
	// RTT is the one-way latency added to every datagram passing
	// through the emulator (so a round trip observes 2*RTT).
	RTT time.Duration
	// RTTDispersion randomizes RTT by +/- this fraction, in [0,1].
	RTTDispersion float64
	// DuplicateProbability is the chance a datagram is additionally
	// delivered a second time.
	DuplicateProbability float64

	rng *rand.Rand

	outQueue scheduledQueue
}

type scheduledDatagram struct {
	at   time.Time
	addr net.Addr
	data []byte
}

type scheduledQueue []*scheduledDatagram

func (q scheduledQueue) Len() int            { return len(q) }
func (q scheduledQueue) Less(i, j int) bool  { return q[i].at.Before(q[j].at) }
func (q scheduledQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *scheduledQueue) Push(x interface{}) { *q = append(*q, x.(*scheduledDatagram)) }
func (q *scheduledQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// NewEmulator wraps conn with a deterministic-seed emulator; seed
// makes drop/dispersion decisions reproducible across test runs.
func NewEmulator(conn net.PacketConn, seed int64) *Emulator {
	return &Emulator{PacketConn: conn, rng: rand.New(rand.NewSource(seed))}
}

// WriteTo schedules data for delivery to addr after the configured
// latency, possibly dropping or duplicating it, instead of writing
// immediately.
func (e *Emulator) WriteTo(data []byte, addr net.Addr) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.DropProbability > 0 && e.rng.Float64() < e.DropProbability {
		return len(data), nil
	}

	copied := append([]byte(nil), data...)
	heap.Push(&e.outQueue, &scheduledDatagram{at: e.scheduleTime(), addr: addr, data: copied})
	if e.DuplicateProbability > 0 && e.rng.Float64() < e.DuplicateProbability {
		dup := append([]byte(nil), data...)
		heap.Push(&e.outQueue, &scheduledDatagram{at: e.scheduleTime(), addr: addr, data: dup})
	}
	return len(data), nil
}

// Flush writes every scheduled datagram whose delivery time is at or
// before now to the underlying PacketConn; tests call this to advance
// the emulator's virtual clock.
func (e *Emulator) Flush(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.outQueue.Len() > 0 && !e.outQueue[0].at.After(now) {
		item := heap.Pop(&e.outQueue).(*scheduledDatagram)
		if _, err := e.PacketConn.WriteTo(item.data, item.addr); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emulator) scheduleTime() time.Time {
	rtt := e.RTT
	if e.RTTDispersion > 0 {
		jitter := 1 + (e.rng.Float64()*2-1)*e.RTTDispersion
		rtt = time.Duration(float64(rtt) * jitter)
	}
	return timeNow().Add(rtt)
}

// timeNow is a package-level indirection so tests can stub the
// emulator's notion of "now" without plumbing a clock through every
// call; production code never constructs an Emulator.
var timeNow = time.Now
