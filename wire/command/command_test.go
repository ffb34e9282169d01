package command

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/cheetah-relay/relay-go/wire"
)

func roundTrip(t *testing.T, cmd Command) Command {
	t.Helper()
	w := wire.NewWriter(nil)
	_ = w.WriteByte(byte(cmd.Type()))
	cmd.encodeBody(w)

	r := wire.NewReader(w.Bytes())
	typeByte, err := r.ReadByte()
	require.NoError(t, err)
	got, err := decodeBody(Type(typeByte), r)
	require.NoError(t, err)
	require.True(t, r.Empty())
	return got
}

func TestCommandRoundTrips(t *testing.T) {
	require.Equal(t, &CreateGameObjectCommand{Data: []byte("init")}, roundTrip(t, &CreateGameObjectCommand{Data: []byte("init")}))
	require.Equal(t, &CreatedGameObjectCommand{}, roundTrip(t, &CreatedGameObjectCommand{}))
	require.Equal(t, &DeleteGameObjectCommand{}, roundTrip(t, &DeleteGameObjectCommand{}))
	require.Equal(t, &SetLongCommand{Value: -12345}, roundTrip(t, &SetLongCommand{Value: -12345}))
	require.Equal(t, &SetDoubleCommand{Value: 3.5}, roundTrip(t, &SetDoubleCommand{Value: 3.5}))
	require.Equal(t, &SetStructureCommand{Value: cbor.RawMessage{0x01}}, roundTrip(t, &SetStructureCommand{Value: cbor.RawMessage{0x01}}))
	require.Equal(t,
		&CompareAndSetLongCommand{Current: 1, New: 2, Reset: -1},
		roundTrip(t, &CompareAndSetLongCommand{Current: 1, New: 2, Reset: -1}))
	require.Equal(t, &IncrementLongCommand{Increment: -7}, roundTrip(t, &IncrementLongCommand{Increment: -7}))
	require.Equal(t, &IncrementDoubleCommand{Increment: -0.25}, roundTrip(t, &IncrementDoubleCommand{Increment: -0.25}))
	require.Equal(t, &DeleteFieldCommand{}, roundTrip(t, &DeleteFieldCommand{}))
	require.Equal(t, &EventCommand{Data: cbor.RawMessage{0x02}}, roundTrip(t, &EventCommand{Data: cbor.RawMessage{0x02}}))
	require.Equal(t,
		&TargetEventCommand{Target: 5, Data: cbor.RawMessage{0x03}},
		roundTrip(t, &TargetEventCommand{Target: 5, Data: cbor.RawMessage{0x03}}))
	require.Equal(t, &AttachToRoomCommand{}, roundTrip(t, &AttachToRoomCommand{}))
	require.Equal(t, &DetachFromRoomCommand{}, roundTrip(t, &DetachFromRoomCommand{}))
	require.Equal(t,
		&ForwardedCommand{From: 3, Inner: &SetLongCommand{Value: 99}},
		roundTrip(t, &ForwardedCommand{From: 3, Inner: &SetLongCommand{Value: 99}}))
}

func TestZigzagRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 12345, -12345, 1<<62 - 1, -(1 << 62)}
	for _, v := range values {
		require.Equal(t, v, zigzagDecode(zigzagEncode(v)))
	}
}
