package command

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cheetah-relay/relay-go/wire"
)

// Type tags the command taxonomy described in spec.md §4.1.
type Type byte

const (
	CreateGameObject Type = iota
	CreatedGameObject
	DeleteGameObject
	SetLong
	SetDouble
	SetStructure
	CompareAndSetLong
	IncrementLong
	IncrementDouble
	DeleteField
	Event
	TargetEvent
	AttachToRoom
	DetachFromRoom
	Forwarded
)

// Command is one decoded application command. Concrete payload types
// implement this for their own Type.
type Command interface {
	Type() Type
	encodeBody(w *wire.Writer)
}

func decodeBody(t Type, r *wire.Reader) (Command, error) {
	switch t {
	case CreateGameObject:
		return decodeCreateGameObjectCommand(r)
	case CreatedGameObject:
		return &CreatedGameObjectCommand{}, nil
	case DeleteGameObject:
		return &DeleteGameObjectCommand{}, nil
	case SetLong:
		return decodeSetLongCommand(r)
	case SetDouble:
		return decodeSetDoubleCommand(r)
	case SetStructure:
		return decodeSetStructureCommand(r)
	case CompareAndSetLong:
		return decodeCompareAndSetLongCommand(r)
	case IncrementLong:
		return decodeIncrementLongCommand(r)
	case IncrementDouble:
		return decodeIncrementDoubleCommand(r)
	case DeleteField:
		return &DeleteFieldCommand{}, nil
	case Event:
		return decodeEventCommand(r)
	case TargetEvent:
		return decodeTargetEventCommand(r)
	case AttachToRoom:
		return &AttachToRoomCommand{}, nil
	case DetachFromRoom:
		return &DetachFromRoomCommand{}, nil
	case Forwarded:
		return decodeForwardedCommand(r)
	default:
		return nil, fmt.Errorf("command: unknown type %d", t)
	}
}

// --- Object lifecycle ---

// CreateGameObjectCommand requests creation of a new game object; Data
// is an opaque cbor-encoded initial-state structure interpreted by the
// room/game-object layer (an external collaborator to this protocol
// core — see spec.md §1).
type CreateGameObjectCommand struct {
	Data []byte
}

func (c *CreateGameObjectCommand) Type() Type { return CreateGameObject }
func (c *CreateGameObjectCommand) encodeBody(w *wire.Writer) {
	w.WriteBytes(c.Data)
}
func (c *CreateGameObjectCommand) RawLen() int { return len(c.Data) }
func decodeCreateGameObjectCommand(r *wire.Reader) (Command, error) {
	data, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &CreateGameObjectCommand{Data: data}, nil
}

// CreatedGameObjectCommand confirms a prior CreateGameObjectCommand has
// taken effect room-side.
type CreatedGameObjectCommand struct{}

func (c *CreatedGameObjectCommand) Type() Type             { return CreatedGameObject }
func (c *CreatedGameObjectCommand) encodeBody(*wire.Writer) {}

// DeleteGameObjectCommand requests/announces deletion of an object.
type DeleteGameObjectCommand struct{}

func (c *DeleteGameObjectCommand) Type() Type             { return DeleteGameObject }
func (c *DeleteGameObjectCommand) encodeBody(*wire.Writer) {}

// --- Field updates ---

// SetLongCommand overwrites an integer field.
type SetLongCommand struct {
	Value int64
}

func (c *SetLongCommand) Type() Type { return SetLong }
func (c *SetLongCommand) encodeBody(w *wire.Writer) {
	w.WriteVarint(zigzagEncode(c.Value))
}
func decodeSetLongCommand(r *wire.Reader) (Command, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	return &SetLongCommand{Value: zigzagDecode(v)}, nil
}

// SetDoubleCommand overwrites a floating-point field.
type SetDoubleCommand struct {
	Value float64
}

func (c *SetDoubleCommand) Type() Type { return SetDouble }
func (c *SetDoubleCommand) encodeBody(w *wire.Writer) {
	w.WriteVarint(float64bits(c.Value))
}
func decodeSetDoubleCommand(r *wire.Reader) (Command, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	return &SetDoubleCommand{Value: float64frombits(v)}, nil
}

// SetStructureCommand overwrites a field with an arbitrary cbor-encoded
// structure, matching the flexible values the room/game-object layer
// attaches to fields (spec.md §4.1).
type SetStructureCommand struct {
	Value cbor.RawMessage
}

func (c *SetStructureCommand) Type() Type { return SetStructure }
func (c *SetStructureCommand) encodeBody(w *wire.Writer) {
	w.WriteBytes(c.Value)
}
func decodeSetStructureCommand(r *wire.Reader) (Command, error) {
	data, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &SetStructureCommand{Value: cbor.RawMessage(data)}, nil
}
func (c *SetStructureCommand) RawLen() int { return len(c.Value) }

// CompareAndSetLongCommand applies the field update only if its current
// value matches Current.
type CompareAndSetLongCommand struct {
	Current int64
	New     int64
	Reset   int64 // value to use if the compare fails and a reset is requested by the room layer
}

func (c *CompareAndSetLongCommand) Type() Type { return CompareAndSetLong }
func (c *CompareAndSetLongCommand) encodeBody(w *wire.Writer) {
	w.WriteVarint(zigzagEncode(c.Current))
	w.WriteVarint(zigzagEncode(c.New))
	w.WriteVarint(zigzagEncode(c.Reset))
}
func decodeCompareAndSetLongCommand(r *wire.Reader) (Command, error) {
	current, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	reset, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	return &CompareAndSetLongCommand{Current: zigzagDecode(current), New: zigzagDecode(n), Reset: zigzagDecode(reset)}, nil
}

// IncrementLongCommand adds Increment to an integer field.
type IncrementLongCommand struct {
	Increment int64
}

func (c *IncrementLongCommand) Type() Type { return IncrementLong }
func (c *IncrementLongCommand) encodeBody(w *wire.Writer) {
	w.WriteVarint(zigzagEncode(c.Increment))
}
func decodeIncrementLongCommand(r *wire.Reader) (Command, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	return &IncrementLongCommand{Increment: zigzagDecode(v)}, nil
}

// IncrementDoubleCommand adds Increment to a floating-point field.
type IncrementDoubleCommand struct {
	Increment float64
}

func (c *IncrementDoubleCommand) Type() Type { return IncrementDouble }
func (c *IncrementDoubleCommand) encodeBody(w *wire.Writer) {
	w.WriteVarint(float64bits(c.Increment))
}
func decodeIncrementDoubleCommand(r *wire.Reader) (Command, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	return &IncrementDoubleCommand{Increment: float64frombits(v)}, nil
}

// DeleteFieldCommand removes a field entirely.
type DeleteFieldCommand struct{}

func (c *DeleteFieldCommand) Type() Type             { return DeleteField }
func (c *DeleteFieldCommand) encodeBody(*wire.Writer) {}

// --- Eventing ---

// EventCommand broadcasts an opaque event to every observer of the
// target object.
type EventCommand struct {
	Data cbor.RawMessage
}

func (c *EventCommand) Type() Type { return Event }
func (c *EventCommand) encodeBody(w *wire.Writer) {
	w.WriteBytes(c.Data)
}
func decodeEventCommand(r *wire.Reader) (Command, error) {
	data, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &EventCommand{Data: cbor.RawMessage(data)}, nil
}
func (c *EventCommand) RawLen() int { return len(c.Data) }

// TargetEventCommand delivers an event to a single named member rather
// than every observer.
type TargetEventCommand struct {
	Target wire.MemberId
	Data   cbor.RawMessage
}

func (c *TargetEventCommand) Type() Type { return TargetEvent }
func (c *TargetEventCommand) encodeBody(w *wire.Writer) {
	w.WriteVarint(uint64(c.Target))
	w.WriteBytes(c.Data)
}
func decodeTargetEventCommand(r *wire.Reader) (Command, error) {
	target, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	data, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &TargetEventCommand{Target: wire.MemberId(target), Data: cbor.RawMessage(data)}, nil
}
func (c *TargetEventCommand) RawLen() int { return len(c.Data) }

// --- Session control ---

// AttachToRoomCommand asks the server to attach the sending member to
// the room carried in the frame's MemberAndRoomId header.
type AttachToRoomCommand struct{}

func (c *AttachToRoomCommand) Type() Type             { return AttachToRoom }
func (c *AttachToRoomCommand) encodeBody(*wire.Writer) {}

// DetachFromRoomCommand asks the server to detach the sending member.
type DetachFromRoomCommand struct{}

func (c *DetachFromRoomCommand) Type() Type             { return DetachFromRoom }
func (c *DetachFromRoomCommand) encodeBody(*wire.Writer) {}

// --- Forwarded (server-to-observer mirroring) ---

// ForwardedCommand wraps another command that the server is mirroring
// from its original author to an observing member.
type ForwardedCommand struct {
	From  wire.MemberId
	Inner Command
}

func (c *ForwardedCommand) Type() Type { return Forwarded }
func (c *ForwardedCommand) encodeBody(w *wire.Writer) {
	w.WriteVarint(uint64(c.From))
	_ = w.WriteByte(byte(c.Inner.Type()))
	c.Inner.encodeBody(w)
}
func decodeForwardedCommand(r *wire.Reader) (Command, error) {
	from, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	innerType, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	inner, err := decodeBody(Type(innerType), r)
	if err != nil {
		return nil, err
	}
	return &ForwardedCommand{From: wire.MemberId(from), Inner: inner}, nil
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
