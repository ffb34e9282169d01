package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	channels "gopkg.in/eapache/channels.v1"

	"github.com/cheetah-relay/relay-go/wire"
)

// ErrChannelRecvError is returned when a management task's reply does
// not arrive within managementTimeout (spec.md §5 "Cancellation /
// timeouts").
var ErrChannelRecvError = errors.New("server: management: channel recv error")

const managementTimeout = 1 * time.Second

// managementOp names the administrative operations spec.md §6 lists.
type managementOp byte

const (
	opCreateRoom managementOp = iota
	opCreateMember
	opDeleteMember
	opDeleteRoom
	opGetRooms
	opGetRoomsMemberCount
	opDump
)

// managementTask is one request crossing from a management goroutine
// into the Server's worker cycle. correlationId identifies the request;
// submit includes it in the ErrChannelRecvError it returns on timeout.
type managementTask struct {
	correlationId uuid.UUID
	op            managementOp

	roomId   wire.RoomId
	memberId wire.MemberId

	reply chan managementReply
}

type managementReply struct {
	err error

	roomIds          []wire.RoomId
	members          int
	connectedMembers int
	snapshot         *RoomSnapshot
}

// managementQueue is the unbounded ring-channel backing the
// management task queue (SPEC_FULL.md domain stack: eapache
// channels.v1), drained once per Server worker cycle.
type managementQueue struct {
	ch *channels.InfiniteChannel
}

func newManagementQueue() *managementQueue {
	return &managementQueue{ch: channels.NewInfiniteChannel()}
}

func (q *managementQueue) submit(t *managementTask) (*managementReply, error) {
	t.correlationId = uuid.Must(uuid.NewV4())
	t.reply = make(chan managementReply, 1)
	q.ch.In() <- t

	select {
	case r := <-t.reply:
		return &r, r.err
	case <-time.After(managementTimeout):
		return nil, fmt.Errorf("%w: correlation id %s", ErrChannelRecvError, t.correlationId)
	}
}

// drain returns every task currently queued, for the worker cycle to
// process without blocking past what was already enqueued.
func (q *managementQueue) drain() []*managementTask {
	var tasks []*managementTask
	out := q.ch.Out()
	for {
		select {
		case v := <-out:
			tasks = append(tasks, v.(*managementTask))
		default:
			return tasks
		}
	}
}

func (q *managementQueue) close() {
	q.ch.Close()
}
