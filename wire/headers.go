package wire

import "fmt"

// HeaderTag identifies the kind of a header per the wire table in
// spec.md §6.
type HeaderTag byte

const (
	TagMemberAndRoomId       HeaderTag = 1
	TagAck                   HeaderTag = 2
	TagRetransmit            HeaderTag = 3
	TagRoundTripTimeRequest  HeaderTag = 4
	TagRoundTripTimeResponse HeaderTag = 5
	TagDisconnect            HeaderTag = 6
	TagKeepAlive             HeaderTag = 7
)

// Header is any tagged frame header.
type Header interface {
	Tag() HeaderTag
	encode(w *Writer)
}

// Headers is the ordered set of headers attached to a frame. Order is
// not semantically meaningful; acks are cumulative only within a
// single AckHeader.
type Headers []Header

// Add appends a header.
func (h *Headers) Add(header Header) {
	*h = append(*h, header)
}

// First returns the first header matching predicate, or nil.
func (h Headers) First(predicate func(Header) bool) Header {
	for _, header := range h {
		if predicate(header) {
			return header
		}
	}
	return nil
}

// Find returns every header matching predicate.
func (h Headers) Find(predicate func(Header) bool) []Header {
	var out []Header
	for _, header := range h {
		if predicate(header) {
			out = append(out, header)
		}
	}
	return out
}

func IsTag(tag HeaderTag) func(Header) bool {
	return func(h Header) bool { return h.Tag() == tag }
}

// MemberAndRoomIdHeader carries the session key; the server dispatcher
// routes every inbound frame by it and drops frames that lack it.
type MemberAndRoomIdHeader struct {
	MemberId MemberId
	RoomId   RoomId
}

func (h *MemberAndRoomIdHeader) Tag() HeaderTag { return TagMemberAndRoomId }
func (h *MemberAndRoomIdHeader) encode(w *Writer) {
	w.WriteVarint(uint64(h.MemberId))
	w.WriteVarint(uint64(h.RoomId))
}

// AckHeader cites a run of received reliable frame ids: start_frame_id
// plus a bitmask of subsequent ids it also covers (bit i == start+i).
type AckHeader struct {
	StartFrameId FrameId
	Mask         uint64
}

// AckHeaderCapacity is the number of frame ids a single AckHeader can
// cite: one bit per id, including the start id itself (bit 0).
const AckHeaderCapacity = 64

func (h *AckHeader) Tag() HeaderTag { return TagAck }
func (h *AckHeader) encode(w *Writer) {
	w.WriteVarint(uint64(h.StartFrameId))
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(h.Mask >> (8 * i))
	}
	w.buf = append(w.buf, b[:]...)
}

// StoreFrameId tries to record id in this header's mask. It returns
// false if id is out of the header's reach and a new header is needed.
func (h *AckHeader) StoreFrameId(id FrameId) bool {
	if id < h.StartFrameId {
		return false
	}
	offset := uint64(id - h.StartFrameId)
	if offset >= AckHeaderCapacity {
		return false
	}
	h.Mask |= 1 << offset
	return true
}

// FrameIds expands the header back into the individual frame ids it cites.
func (h *AckHeader) FrameIds() []FrameId {
	ids := make([]FrameId, 0, 8)
	for offset := uint64(0); offset < AckHeaderCapacity; offset++ {
		if h.Mask&(1<<offset) != 0 {
			ids = append(ids, h.StartFrameId+FrameId(offset))
		}
	}
	return ids
}

// RetransmitHeader marks a frame as a retransmission of original_frame_id.
type RetransmitHeader struct {
	OriginalFrameId FrameId
}

func (h *RetransmitHeader) Tag() HeaderTag { return TagRetransmit }
func (h *RetransmitHeader) encode(w *Writer) {
	w.WriteVarint(uint64(h.OriginalFrameId))
}

// RoundTripTimeRequestHeader carries the sender's local clock reading.
type RoundTripTimeRequestHeader struct {
	SelfTimeMs uint64
}

func (h *RoundTripTimeRequestHeader) Tag() HeaderTag { return TagRoundTripTimeRequest }
func (h *RoundTripTimeRequestHeader) encode(w *Writer) {
	w.WriteVarint(h.SelfTimeMs)
}

// RoundTripTimeResponseHeader echoes a previously observed request's
// SelfTimeMs verbatim so the original sender can measure elapsed time
// against its own clock.
type RoundTripTimeResponseHeader struct {
	SelfTimeMs uint64
}

func (h *RoundTripTimeResponseHeader) Tag() HeaderTag { return TagRoundTripTimeResponse }
func (h *RoundTripTimeResponseHeader) encode(w *Writer) {
	w.WriteVarint(h.SelfTimeMs)
}

// DisconnectReason is the tagged reason carried by DisconnectHeader.
type DisconnectReason byte

const (
	DisconnectNone          DisconnectReason = 0
	DisconnectClientStopped DisconnectReason = 1
	DisconnectRoomDeleted   DisconnectReason = 2
	DisconnectMemberDeleted DisconnectReason = 3
	// ByTimeout and ByRetransmitWhenMaxCount are local session-error
	// reasons (spec.md §7); they never cross the wire as a
	// DisconnectHeader, which only ever carries an explicit
	// application-requested reason.
	DisconnectByTimeout               DisconnectReason = 101
	DisconnectByRetransmitWhenMaxCount DisconnectReason = 102
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectClientStopped:
		return "ClientStopped"
	case DisconnectRoomDeleted:
		return "RoomDeleted"
	case DisconnectMemberDeleted:
		return "MemberDeleted"
	case DisconnectByTimeout:
		return "ByTimeout"
	case DisconnectByRetransmitWhenMaxCount:
		return "ByRetransmitWhenMaxCount"
	default:
		return fmt.Sprintf("DisconnectReason(%d)", byte(r))
	}
}

// DisconnectHeader carries an explicit disconnect reason to the peer.
type DisconnectHeader struct {
	Reason DisconnectReason
}

func (h *DisconnectHeader) Tag() HeaderTag { return TagDisconnect }
func (h *DisconnectHeader) encode(w *Writer) {
	w.buf = append(w.buf, byte(h.Reason))
}

// KeepAliveHeader carries no payload; its presence on an otherwise
// empty frame is what keeps NATs mapped and the peer's timeout clock
// from tripping.
type KeepAliveHeader struct{}

func (h *KeepAliveHeader) Tag() HeaderTag  { return TagKeepAlive }
func (h *KeepAliveHeader) encode(w *Writer) {}

// EncodeHeaders writes the count-prefixed header vector.
func EncodeHeaders(headers Headers, w *Writer) {
	w.WriteVarint(uint64(len(headers)))
	for _, h := range headers {
		_ = w.WriteByte(byte(h.Tag()))
		h.encode(w)
	}
}

// DecodeHeaders reads the count-prefixed header vector written by
// EncodeHeaders.
func DecodeHeaders(r *Reader) (Headers, error) {
	count, err := r.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("%w: header count", err)
	}
	headers := make(Headers, 0, count)
	for i := uint64(0); i < count; i++ {
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: header tag", err)
		}
		header, err := decodeHeader(HeaderTag(tagByte), r)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
	}
	return headers, nil
}

func decodeHeader(tag HeaderTag, r *Reader) (Header, error) {
	switch tag {
	case TagMemberAndRoomId:
		memberId, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		roomId, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		return &MemberAndRoomIdHeader{MemberId: MemberId(memberId), RoomId: RoomId(roomId)}, nil
	case TagAck:
		start, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		var mask uint64
		for i := 0; i < 8; i++ {
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			mask |= uint64(b) << (8 * i)
		}
		return &AckHeader{StartFrameId: FrameId(start), Mask: mask}, nil
	case TagRetransmit:
		original, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		return &RetransmitHeader{OriginalFrameId: FrameId(original)}, nil
	case TagRoundTripTimeRequest:
		t, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		return &RoundTripTimeRequestHeader{SelfTimeMs: t}, nil
	case TagRoundTripTimeResponse:
		t, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		return &RoundTripTimeResponseHeader{SelfTimeMs: t}, nil
	case TagDisconnect:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return &DisconnectHeader{Reason: DisconnectReason(b)}, nil
	case TagKeepAlive:
		return &KeepAliveHeader{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown header tag %d", tag)
	}
}

// Predicate helpers used by subsystems that scan a frame's headers.

func PredicateAck(h Header) bool {
	_, ok := h.(*AckHeader)
	return ok
}

func PredicateRetransmit(h Header) bool {
	_, ok := h.(*RetransmitHeader)
	return ok
}

func PredicateRoundTripTimeRequest(h Header) bool {
	_, ok := h.(*RoundTripTimeRequestHeader)
	return ok
}

func PredicateRoundTripTimeResponse(h Header) bool {
	_, ok := h.(*RoundTripTimeResponseHeader)
	return ok
}

func PredicateDisconnect(h Header) bool {
	_, ok := h.(*DisconnectHeader)
	return ok
}

func PredicateMemberAndRoomId(h Header) bool {
	_, ok := h.(*MemberAndRoomIdHeader)
	return ok
}
