// Package command implements the relay's application-command
// taxonomy: the object lifecycle, field-update, eventing and
// session-control commands carried inside a frame's body, along with
// the delta-compressed Context that lets consecutive commands in a
// frame omit fields that have not changed.
package command

import (
	"fmt"

	"github.com/cheetah-relay/relay-go/wire"
)

// OwnerKind distinguishes the two ways a GameObjectId can be owned.
type OwnerKind byte

const (
	// OwnerRoom means the object belongs to the room itself (e.g.
	// server-authoritative shared state) rather than a member.
	OwnerRoom OwnerKind = 0
	// OwnerMember means the object was created by, and is owned by, a
	// specific room member.
	OwnerMember OwnerKind = 1
)

// GameObjectId identifies a game object: a local id scoped to an owner.
type GameObjectId struct {
	Id    uint32
	Kind  OwnerKind
	Owner wire.MemberId // meaningful only when Kind == OwnerMember
}

// NewRoomObjectId builds a room-owned object id.
func NewRoomObjectId(id uint32) GameObjectId {
	return GameObjectId{Id: id, Kind: OwnerRoom}
}

// NewMemberObjectId builds a member-owned object id.
func NewMemberObjectId(id uint32, owner wire.MemberId) GameObjectId {
	return GameObjectId{Id: id, Kind: OwnerMember, Owner: owner}
}

func (g GameObjectId) Encode(w *wire.Writer) {
	w.WriteVarint(uint64(g.Id))
	_ = w.WriteByte(byte(g.Kind))
	if g.Kind == OwnerMember {
		w.WriteVarint(uint64(g.Owner))
	}
}

func DecodeGameObjectId(r *wire.Reader) (GameObjectId, error) {
	id, err := r.ReadVarint()
	if err != nil {
		return GameObjectId{}, err
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return GameObjectId{}, err
	}
	kind := OwnerKind(kindByte)
	g := GameObjectId{Id: uint32(id), Kind: kind}
	if kind == OwnerMember {
		owner, err := r.ReadVarint()
		if err != nil {
			return GameObjectId{}, err
		}
		g.Owner = wire.MemberId(owner)
	} else if kind != OwnerRoom {
		return GameObjectId{}, fmt.Errorf("command: unknown object owner kind %d", kindByte)
	}
	return g, nil
}
