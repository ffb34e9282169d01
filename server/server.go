// Package server implements the Server dispatcher: it demultiplexes
// inbound datagrams by (member_id, room_id), routes them to the
// matching Protocol, and drives every session's build_next_frame once
// per cycle (spec.md §2 component 11, §5).
package server

import (
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/katzenpost/katzenpost/core/worker"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cheetah-relay/relay-go/frame"
	"github.com/cheetah-relay/relay-go/protocol"
	"github.com/cheetah-relay/relay-go/server/netchannel"
	"github.com/cheetah-relay/relay-go/wire"
)

// session pairs a Protocol with the peer address its datagrams arrive
// from and are sent to.
type session struct {
	key   wire.MemberAndRoomId
	proto *protocol.Protocol
	addr  net.Addr

	// lastLowCountAck is the proto.LowCountAckCount() value last folded
	// into metrics.lowCountAck, so only the delta since the previous
	// cycle is added to the counter.
	lastLowCountAck uint64
}

// Server owns the UDP socket and every session's Protocol. One
// dedicated worker goroutine drives the whole cycle (spec.md §5):
// drain inbound datagrams, build and send each session's next frame,
// run queued management tasks, sleep briefly if the cycle was cheap.
type Server struct {
	worker.Worker

	log       *log.Logger
	cfg       *Config
	channel   *netchannel.Channel
	metrics   *metrics
	mgmt      *managementQueue
	snapshots *SnapshotStore

	sessions map[wire.MemberAndRoomId]*session
	rooms    map[wire.RoomId]map[wire.MemberId]bool
}

// New constructs a Server bound to cfg.Listen, registering its metrics
// with reg. When cfg.SnapshotPath is set, it opens the snapshot store
// and restores the room/member directory from the last persisted
// snapshots before returning.
func New(cfg *Config, reg prometheus.Registerer, logger *log.Logger) (*Server, error) {
	ch, err := netchannel.Listen(cfg.Listen)
	if err != nil {
		return nil, err
	}
	logger = logger.WithPrefix("server")

	s := &Server{
		log:      logger,
		cfg:      cfg,
		channel:  ch,
		metrics:  newMetrics(reg),
		mgmt:     newManagementQueue(),
		sessions: make(map[wire.MemberAndRoomId]*session),
		rooms:    make(map[wire.RoomId]map[wire.MemberId]bool),
	}

	if cfg.SnapshotPath != "" {
		store, err := OpenSnapshotStore(cfg.SnapshotPath, cfg.SnapshotKey(), logger)
		if err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("server: open snapshot store: %w", err)
		}
		s.snapshots = store
		if err := s.restoreFromSnapshots(); err != nil {
			_ = ch.Close()
			_ = store.Close()
			return nil, fmt.Errorf("server: restore snapshots: %w", err)
		}
	}

	return s, nil
}

// restoreFromSnapshots repopulates the room/member directory (and opens
// a fresh session per member) from every snapshot persisted before this
// process started.
func (s *Server) restoreFromSnapshots() error {
	snaps, err := s.snapshots.LoadAll()
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		members := make(map[wire.MemberId]bool, len(snap.Members))
		for _, id := range snap.Members {
			members[id] = true
		}
		s.rooms[snap.RoomId] = members
		for _, id := range snap.Members {
			key := wire.MemberAndRoomId{MemberId: id, RoomId: snap.RoomId}
			if _, err := s.createSession(key); err != nil {
				return err
			}
		}
		s.log.Infof("restored room %d with %d member(s) from snapshot", snap.RoomId, len(snap.Members))
	}
	return nil
}

// Start launches the server's worker cycle, and the snapshot store's
// background writer if persistence is enabled.
func (s *Server) Start() {
	if s.snapshots != nil {
		s.snapshots.Start()
	}
	s.Go(s.cycle)
}

// Shutdown halts the worker cycle, closes the snapshot store, and
// releases the socket.
func (s *Server) Shutdown() {
	s.Halt()
	s.mgmt.close()
	if s.snapshots != nil {
		if err := s.snapshots.Close(); err != nil {
			s.log.Errorf("close snapshot store: %v", err)
		}
	}
	_ = s.channel.Close()
}

// cycle is the per-tick driver spec.md §5 describes: drain inbound
// datagrams, build and send outgoing frames for every session, run
// queued management tasks, then sleep briefly if the cycle ran under
// a millisecond.
func (s *Server) cycle() {
	for {
		select {
		case <-s.HaltCh():
			return
		default:
		}

		start := time.Now()
		s.drainInbound(start)
		s.buildAndSend(start)
		s.runManagementTasks()

		if elapsed := time.Since(start); elapsed < time.Millisecond {
			select {
			case <-s.HaltCh():
				return
			case <-time.After(time.Millisecond - elapsed):
			}
		}
	}
}

func (s *Server) drainInbound(now time.Time) {
	for {
		datagrams, err := s.channel.ReadBatch()
		if err != nil {
			s.log.Errorf("read batch: %v", err)
			return
		}
		if len(datagrams) == 0 {
			return
		}
		for _, d := range datagrams {
			s.handleDatagram(d, now)
		}
	}
}

func (s *Server) handleDatagram(d netchannel.Datagram, now time.Time) {
	s.metrics.framesReceived.Inc()

	connId, frameId, headers, bodyOffset, err := frame.DecodeMeta(d.Data)
	if err != nil {
		s.metrics.framesDropped.WithLabelValues("meta").Inc()
		s.log.Debugf("decode meta from %v: %v", d.Addr, err)
		return
	}

	memberAndRoom := headers.First(wire.PredicateMemberAndRoomId)
	if memberAndRoom == nil {
		s.metrics.framesDropped.WithLabelValues("no_session_header").Inc()
		s.log.Debugf("frame from %v missing MemberAndRoomId header", d.Addr)
		return
	}
	h := memberAndRoom.(*wire.MemberAndRoomIdHeader)
	key := wire.MemberAndRoomId{MemberId: h.MemberId, RoomId: h.RoomId}

	sess, ok := s.sessions[key]
	if !ok {
		s.metrics.framesDropped.WithLabelValues("unknown_session").Inc()
		s.log.Debugf("frame from %v for unregistered session %+v", d.Addr, key)
		return
	}
	sess.addr = d.Addr

	commands, err := frame.DecodeBody(d.Data[:bodyOffset], d.Data[bodyOffset:], sess.proto.Cipher, frameId)
	if err != nil {
		s.metrics.framesDropped.WithLabelValues("body").Inc()
		s.log.Debugf("decode body from %v: %v", d.Addr, err)
		return
	}

	f := &frame.Frame{ConnectionId: connId, FrameId: frameId, Headers: headers, Commands: commands}
	for _, c := range commands {
		if c.Reliable() {
			f.Reliable = true
			break
		}
	}
	sess.proto.OnFrameReceived(f, now)
}

func (s *Server) buildAndSend(now time.Time) {
	buf := make([]byte, wire.MaxDatagramSize)
	for _, sess := range s.sessions {
		f := sess.proto.BuildNextFrame(now)
		if f == nil {
			continue
		}
		if sess.addr == nil {
			continue // never heard from this peer yet; nothing to send to
		}
		n, leftover, err := frame.Encode(f, sess.proto.Cipher, buf)
		if err != nil {
			s.log.Errorf("encode frame for %+v: %v", sess.key, err)
			continue
		}
		sess.proto.RequeueLeftover(leftover)
		if err := s.channel.Send(sess.addr, buf[:n]); err != nil {
			s.log.Warnf("send to %v: %v", sess.addr, err)
			continue
		}
		s.metrics.framesSent.Inc()
		if f.Headers.First(wire.PredicateRetransmit) != nil {
			s.metrics.retransmits.Inc()
		}

		if lowCount := sess.proto.LowCountAckCount(); lowCount > sess.lastLowCountAck {
			s.metrics.lowCountAck.Add(float64(lowCount - sess.lastLowCountAck))
			sess.lastLowCountAck = lowCount
		}
		if estimate, ok := sess.proto.Estimate(); ok {
			s.metrics.roundTripSeconds.Observe(estimate.Seconds())
		}

		if reason, disconnected := sess.proto.IsDisconnected(now); disconnected {
			s.metrics.disconnects.WithLabelValues(reason.String()).Inc()
			delete(s.sessions, sess.key)
		}
	}
	s.metrics.activeSessions.Set(float64(len(s.sessions)))
}

// createSession registers a new session for key, deriving a
// per-session Cipher from the configured private key and the room id
// (which pads every frame's AEAD nonce).
func (s *Server) createSession(key wire.MemberAndRoomId) (*session, error) {
	cipher, err := frame.NewCipher(s.cfg.PrivateKey(), key.RoomId)
	if err != nil {
		return nil, fmt.Errorf("server: create session: %w", err)
	}
	sess := &session{
		key:   key,
		proto: protocol.New(s.cfg.ProtocolConfig(), cipher, time.Now()),
	}
	s.sessions[key] = sess
	return sess, nil
}

// runManagementTasks drains and executes every management task queued
// since the last cycle (spec.md §5: management RPCs cross into the
// worker thread via a request/response channel).
func (s *Server) runManagementTasks() {
	for _, t := range s.mgmt.drain() {
		t.reply <- s.execManagementTask(t)
	}
}

func (s *Server) execManagementTask(t *managementTask) managementReply {
	switch t.op {
	case opCreateRoom:
		if s.rooms[t.roomId] == nil {
			s.rooms[t.roomId] = make(map[wire.MemberId]bool)
		}
		return managementReply{}

	case opDeleteRoom:
		for key := range s.sessions {
			if key.RoomId == t.roomId {
				delete(s.sessions, key)
			}
		}
		delete(s.rooms, t.roomId)
		return managementReply{}

	case opCreateMember:
		members, ok := s.rooms[t.roomId]
		if !ok {
			return managementReply{err: fmt.Errorf("server: room %d does not exist", t.roomId)}
		}
		members[t.memberId] = true
		key := wire.MemberAndRoomId{MemberId: t.memberId, RoomId: t.roomId}
		if _, err := s.createSession(key); err != nil {
			return managementReply{err: err}
		}
		return managementReply{}

	case opDeleteMember:
		key := wire.MemberAndRoomId{MemberId: t.memberId, RoomId: t.roomId}
		delete(s.sessions, key)
		if members, ok := s.rooms[t.roomId]; ok {
			delete(members, t.memberId)
		}
		return managementReply{}

	case opGetRooms:
		ids := make([]wire.RoomId, 0, len(s.rooms))
		for id := range s.rooms {
			ids = append(ids, id)
		}
		return managementReply{roomIds: ids}

	case opGetRoomsMemberCount:
		// Supplemented feature #4: distinguish registered members from
		// members currently holding a connected session.
		members := len(s.rooms[t.roomId])
		connected := 0
		for key, sess := range s.sessions {
			if key.RoomId != t.roomId {
				continue
			}
			if sess.proto.IsConnected(time.Now()) {
				connected++
			}
		}
		return managementReply{members: members, connectedMembers: connected}

	case opDump:
		members := make([]wire.MemberId, 0, len(s.rooms[t.roomId]))
		for id := range s.rooms[t.roomId] {
			members = append(members, id)
		}
		snap := &RoomSnapshot{RoomId: t.roomId, Members: members}
		if s.snapshots != nil {
			// Carry forward the room/game-object layer's opaque blob
			// from the last persisted snapshot; this layer only tracks
			// the member directory itself.
			if prior, err := s.snapshots.Load(t.roomId); err != nil {
				s.log.Errorf("load prior snapshot for room %d: %v", t.roomId, err)
			} else if prior != nil {
				snap.Data = prior.Data
			}
			s.snapshots.Dump(snap)
		}
		return managementReply{snapshot: snap}

	default:
		return managementReply{err: fmt.Errorf("server: unknown management op %d", t.op)}
	}
}

// CreateRoom registers an empty room.
func (s *Server) CreateRoom(roomId wire.RoomId) error {
	_, err := s.mgmt.submit(&managementTask{op: opCreateRoom, roomId: roomId})
	return err
}

// DeleteRoom tears down every session in roomId and forgets it.
func (s *Server) DeleteRoom(roomId wire.RoomId) error {
	_, err := s.mgmt.submit(&managementTask{op: opDeleteRoom, roomId: roomId})
	return err
}

// CreateMember registers memberId in roomId and opens a session for
// it.
func (s *Server) CreateMember(roomId wire.RoomId, memberId wire.MemberId) error {
	_, err := s.mgmt.submit(&managementTask{op: opCreateMember, roomId: roomId, memberId: memberId})
	return err
}

// DeleteMember tears down memberId's session in roomId.
func (s *Server) DeleteMember(roomId wire.RoomId, memberId wire.MemberId) error {
	_, err := s.mgmt.submit(&managementTask{op: opDeleteMember, roomId: roomId, memberId: memberId})
	return err
}

// GetRooms lists every currently-registered room id.
func (s *Server) GetRooms() ([]wire.RoomId, error) {
	r, err := s.mgmt.submit(&managementTask{op: opGetRooms})
	if err != nil {
		return nil, err
	}
	return r.roomIds, nil
}

// GetRoomsMemberCount reports both the registered member count and the
// number currently holding a connected session in roomId (supplemented
// feature #4).
func (s *Server) GetRoomsMemberCount(roomId wire.RoomId) (members, connected int, err error) {
	r, err := s.mgmt.submit(&managementTask{op: opGetRoomsMemberCount, roomId: roomId})
	if err != nil {
		return 0, 0, err
	}
	return r.members, r.connectedMembers, nil
}

// Dump returns a snapshot of roomId's member directory.
func (s *Server) Dump(roomId wire.RoomId) (*RoomSnapshot, error) {
	r, err := s.mgmt.submit(&managementTask{op: opDump, roomId: roomId})
	if err != nil {
		return nil, err
	}
	return r.snapshot, nil
}
