package server

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/cheetah-relay/relay-go/wire"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func testSnapshotKey() *[32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i * 3)
	}
	return &k
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := OpenSnapshotStore(path, testSnapshotKey(), testLogger())
	require.NoError(t, err)
	store.Start()
	defer store.Close()

	snap := &RoomSnapshot{RoomId: 7, Members: []wire.MemberId{1, 2, 3}, Data: []byte("payload")}
	store.Dump(snap)

	require.Eventually(t, func() bool {
		got, err := store.Load(7)
		return err == nil && got != nil
	}, time.Second, time.Millisecond)

	got, err := store.Load(7)
	require.NoError(t, err)
	require.Equal(t, snap.RoomId, got.RoomId)
	require.Equal(t, snap.Members, got.Members)
	require.Equal(t, snap.Data, got.Data)
}

func TestSnapshotStoreLoadMissingReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := OpenSnapshotStore(path, testSnapshotKey(), testLogger())
	require.NoError(t, err)
	store.Start()
	defer store.Close()

	got, err := store.Load(999)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSnapshotStoreLoadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := OpenSnapshotStore(path, testSnapshotKey(), testLogger())
	require.NoError(t, err)
	store.Start()
	defer store.Close()

	store.Dump(&RoomSnapshot{RoomId: 1, Members: []wire.MemberId{1}})
	store.Dump(&RoomSnapshot{RoomId: 2, Members: []wire.MemberId{2, 3}})

	require.Eventually(t, func() bool {
		all, err := store.LoadAll()
		return err == nil && len(all) == 2
	}, time.Second, time.Millisecond)

	all, err := store.LoadAll()
	require.NoError(t, err)
	byRoom := make(map[wire.RoomId]*RoomSnapshot, len(all))
	for _, snap := range all {
		byRoom[snap.RoomId] = snap
	}
	require.Equal(t, []wire.MemberId{1}, byRoom[1].Members)
	require.Equal(t, []wire.MemberId{2, 3}, byRoom[2].Members)
}

func TestSnapshotStoreRejectsWrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := OpenSnapshotStore(path, testSnapshotKey(), testLogger())
	require.NoError(t, err)
	store.Start()

	snap := &RoomSnapshot{RoomId: 1}
	store.Dump(snap)
	require.Eventually(t, func() bool {
		got, _ := store.Load(1)
		return got != nil
	}, time.Second, time.Millisecond)
	require.NoError(t, store.Close())

	var otherKey [32]byte
	for i := range otherKey {
		otherKey[i] = byte(i + 1)
	}
	reopened, err := OpenSnapshotStore(path, &otherKey, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Load(1)
	require.Error(t, err)
}
