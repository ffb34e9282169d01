package command

import (
	"errors"
	"fmt"

	"github.com/cheetah-relay/relay-go/channel"
	"github.com/cheetah-relay/relay-go/wire"
)

// WithContext pairs a decoded/pending Command with the addressing and
// reliability metadata spec.md's command taxonomy carries alongside
// it: which object/field it targets, which channel discipline governs
// its delivery, and (for sequenced channels) its ChannelSequence.
type WithContext struct {
	ObjectId     *GameObjectId
	FieldId      *uint16
	ChannelGroup *wire.ChannelGroup
	Creator      *wire.MemberId
	Channel      channel.Channel
	Sequence     wire.ChannelSequence // meaningful only when Channel.Class.Sequenced()
	Command      Command
}

// Reliable reports whether this command requires at-least-once
// delivery, which in turn determines whether the frame carrying it is
// retained for retransmission (spec.md §3 invariant 3).
func (w *WithContext) Reliable() bool {
	return w.Channel.Class.Reliable()
}

// creatorSource is the delta-compression tag for how a command's
// Creator field is represented on the wire, recovered from
// original_source/.../context.rs (see SPEC_FULL.md "Supplemented
// features" #1): a command rarely needs to spell out its creator, since
// it is usually either the running context's current creator or the
// owner of the object being addressed.
type creatorSource byte

const (
	creatorNotSupported  creatorSource = 0
	creatorCurrent       creatorSource = 1
	creatorNew           creatorSource = 2
	creatorAsObjectOwner creatorSource = 3
)

// header is the compact per-command wire header: the command type tag,
// the channel type tag, and which context fields changed relative to
// the previous command in the same frame (spec.md §4.1 "Command delta
// context").
type header struct {
	commandType    Type
	channelType    byte
	newObjectId    bool
	newFieldId     bool
	newChannelGrp  bool
	creatorSrc     creatorSource
}

func (h header) encode(w *wire.Writer) {
	_ = w.WriteByte(byte(h.commandType))
	var flags byte
	flags |= h.channelType << 5 // 3 bits: channel type (0-4 fits)
	if h.newObjectId {
		flags |= 1 << 4
	}
	if h.newFieldId {
		flags |= 1 << 3
	}
	if h.newChannelGrp {
		flags |= 1 << 2
	}
	flags |= byte(h.creatorSrc) & 0x3
	_ = w.WriteByte(flags)
}

func decodeHeader(r *wire.Reader) (header, error) {
	typeByte, err := r.ReadByte()
	if err != nil {
		return header{}, err
	}
	flagsByte, err := r.ReadByte()
	if err != nil {
		return header{}, err
	}
	return header{
		commandType:   Type(typeByte),
		channelType:   (flagsByte >> 5) & 0x7,
		newObjectId:   flagsByte&(1<<4) != 0,
		newFieldId:    flagsByte&(1<<3) != 0,
		newChannelGrp: flagsByte&(1<<2) != 0,
		creatorSrc:    creatorSource(flagsByte & 0x3),
	}, nil
}

// ErrMissingChannelGroup is returned while decoding a command on a
// grouped channel whose context never established a ChannelGroup.
var ErrMissingChannelGroup = errors.New("command: context does not contain a channel group")

// ErrMissingCreator is returned when a creatorCurrent tag is decoded but
// the context has no creator, or a creatorAsObjectOwner tag is decoded
// but the context's object is not member-owned.
var ErrMissingCreator = errors.New("command: context does not contain a creator")

// Context tracks the delta-compression state {object_id, field_id,
// channel_group, creator} shared by consecutive commands within one
// frame. A fresh Context must be used per frame: it does not persist
// across frame boundaries.
type Context struct {
	objectId     *GameObjectId
	fieldId      *uint16
	channelGroup *wire.ChannelGroup
	creator      *wire.MemberId
}

// WriteNext encodes cmd's header and body into w, updating the running
// context and omitting any field that is unchanged from the previous
// command written through this Context.
func (c *Context) WriteNext(w *wire.Writer, wc *WithContext) error {
	h := header{commandType: wc.Command.Type(), channelType: wc.Channel.Class.WireTag()}

	if objectIdChanged(c.objectId, wc.ObjectId) {
		h.newObjectId = true
	}
	if fieldIdChanged(c.fieldId, wc.FieldId) {
		h.newFieldId = true
	}
	if channelGroupChanged(c.channelGroup, wc.ChannelGroup) {
		h.newChannelGrp = true
	}
	h.creatorSrc = c.determineCreatorSource(wc)
	h.encode(w)

	if h.newObjectId {
		wc.ObjectId.Encode(w)
		c.objectId = wc.ObjectId
	}
	if h.newFieldId {
		w.WriteVarint(uint64(*wc.FieldId))
		c.fieldId = wc.FieldId
	}
	if h.newChannelGrp {
		w.WriteVarint(uint64(*wc.ChannelGroup))
		c.channelGroup = wc.ChannelGroup
	}
	if wc.Channel.Class.Sequenced() {
		w.WriteVarint(uint64(wc.Sequence))
	}
	if h.creatorSrc == creatorNew {
		w.WriteVarint(uint64(*wc.Creator))
		c.creator = wc.Creator
	}
	if h.creatorSrc == creatorAsObjectOwner {
		c.creator = wc.Creator
	}

	wc.Command.encodeBody(w)
	return nil
}

func (c *Context) determineCreatorSource(wc *WithContext) creatorSource {
	if wc.Creator == nil {
		return creatorNotSupported
	}
	if c.creator != nil && *c.creator == *wc.Creator {
		return creatorCurrent
	}
	if wc.ObjectId != nil && wc.ObjectId.Kind == OwnerMember && wc.ObjectId.Owner == *wc.Creator {
		return creatorAsObjectOwner
	}
	return creatorNew
}

// ReadNext decodes the next command's header and body from r, updating
// the running context from any fields the header marks as changed.
func (c *Context) ReadNext(r *wire.Reader) (*WithContext, error) {
	h, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	class, err := channel.ClassFromWireTag(h.channelType)
	if err != nil {
		return nil, err
	}

	if h.newObjectId {
		objectId, err := DecodeGameObjectId(r)
		if err != nil {
			return nil, err
		}
		c.objectId = &objectId
	}
	if h.newFieldId {
		fieldId, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		v := uint16(fieldId)
		c.fieldId = &v
	}
	if h.newChannelGrp {
		group, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		g := wire.ChannelGroup(group)
		c.channelGroup = &g
	}

	ch := channel.Channel{Class: class}
	if class.Grouped() {
		if c.channelGroup == nil {
			return nil, ErrMissingChannelGroup
		}
		ch.Group = *c.channelGroup
	}

	var sequence wire.ChannelSequence
	if class.Sequenced() {
		seq, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		sequence = wire.ChannelSequence(seq)
	}

	creator, err := c.resolveCreator(r, h.creatorSrc)
	if err != nil {
		return nil, err
	}

	cmd, err := decodeBody(h.commandType, r)
	if err != nil {
		return nil, fmt.Errorf("command: decode body type %d: %w", h.commandType, err)
	}

	return &WithContext{
		ObjectId:     c.objectId,
		FieldId:      c.fieldId,
		ChannelGroup: c.channelGroup,
		Creator:      creator,
		Channel:      ch,
		Sequence:     sequence,
		Command:      cmd,
	}, nil
}

func (c *Context) resolveCreator(r *wire.Reader, src creatorSource) (*wire.MemberId, error) {
	switch src {
	case creatorNotSupported:
		return nil, nil
	case creatorCurrent:
		if c.creator == nil {
			return nil, ErrMissingCreator
		}
		return c.creator, nil
	case creatorNew:
		v, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		id := wire.MemberId(v)
		c.creator = &id
		return &id, nil
	case creatorAsObjectOwner:
		if c.objectId == nil || c.objectId.Kind != OwnerMember {
			return nil, ErrMissingCreator
		}
		c.creator = &c.objectId.Owner
		return c.creator, nil
	default:
		return nil, fmt.Errorf("command: unknown creator source %d", src)
	}
}

func objectIdChanged(current *GameObjectId, next *GameObjectId) bool {
	if next == nil {
		return false
	}
	return current == nil || *current != *next
}

func fieldIdChanged(current *uint16, next *uint16) bool {
	if next == nil {
		return false
	}
	return current == nil || *current != *next
}

func channelGroupChanged(current *wire.ChannelGroup, next *wire.ChannelGroup) bool {
	if next == nil {
		return false
	}
	return current == nil || *current != *next
}
