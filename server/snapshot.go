package server

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/katzenpost/katzenpost/core/crypto/rand"
	"github.com/katzenpost/katzenpost/core/worker"
	"github.com/ugorji/go/codec"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/cheetah-relay/relay-go/wire"
)

var cborHandle = new(codec.CborHandle)

const nonceSize = 24

var roomsBucket = []byte("rooms")

// RoomSnapshot is the envelope persisted by Dump(room_id): an opaque,
// room/game-object-layer-defined blob alongside the member directory
// this protocol core itself tracks.
type RoomSnapshot struct {
	RoomId  wire.RoomId
	Members []wire.MemberId
	Data    []byte
}

// SnapshotStore persists RoomSnapshot values to an embedded bbolt
// database, sealed with secretbox under a key distinct from the
// session AEAD key. Writes happen on a dedicated worker goroutine so
// Dump() never blocks the caller on disk I/O, mirroring the teacher's
// disk.go StateWriter.
type SnapshotStore struct {
	worker.Worker

	log *log.Logger
	db  *bbolt.DB
	key [32]byte

	writeCh chan *RoomSnapshot
}

// OpenSnapshotStore opens (creating if necessary) the bbolt database
// at path, sealing snapshots under key.
func OpenSnapshotStore(path string, key *[32]byte, logger *log.Logger) (*SnapshotStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("server: open snapshot store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(roomsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("server: init snapshot store: %w", err)
	}

	s := &SnapshotStore{
		log:     logger.WithPrefix("snapshot"),
		db:      db,
		writeCh: make(chan *RoomSnapshot, 64),
	}
	copy(s.key[:], key[:])
	return s, nil
}

// Start launches the background writer goroutine.
func (s *SnapshotStore) Start() {
	s.Go(s.worker)
}

// Dump enqueues snap for asynchronous, encrypted persistence.
func (s *SnapshotStore) Dump(snap *RoomSnapshot) {
	select {
	case s.writeCh <- snap:
	case <-s.HaltCh():
	}
}

// Load decrypts and decodes the snapshot stored for roomId, if any.
func (s *SnapshotStore) Load(roomId wire.RoomId) (*RoomSnapshot, error) {
	var sealed []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(roomsBucket).Get(roomKey(roomId))
		if b == nil {
			return nil
		}
		sealed = append([]byte(nil), b...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("server: load snapshot: %w", err)
	}
	if sealed == nil {
		return nil, nil
	}
	return s.open(sealed)
}

// LoadAll decrypts and decodes every snapshot currently persisted,
// for restoring the room/member directory on startup.
func (s *SnapshotStore) LoadAll() ([]*RoomSnapshot, error) {
	var sealed [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(roomsBucket).ForEach(func(_, v []byte) error {
			sealed = append(sealed, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("server: load all snapshots: %w", err)
	}

	snaps := make([]*RoomSnapshot, 0, len(sealed))
	for _, b := range sealed {
		snap, err := s.open(b)
		if err != nil {
			return nil, fmt.Errorf("server: load all snapshots: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Close stops the writer goroutine and closes the database.
func (s *SnapshotStore) Close() error {
	s.Halt()
	return s.db.Close()
}

func (s *SnapshotStore) worker() {
	for {
		select {
		case <-s.HaltCh():
			return
		case snap := <-s.writeCh:
			if err := s.write(snap); err != nil {
				s.log.Errorf("write snapshot for room %d: %v", snap.RoomId, err)
			}
		}
	}
}

func (s *SnapshotStore) write(snap *RoomSnapshot) error {
	var plaintext []byte
	if err := codec.NewEncoderBytes(&plaintext, cborHandle).Encode(snap); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Reader.Read(nonce[:]); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(roomsBucket).Put(roomKey(snap.RoomId), sealed)
	})
}

func (s *SnapshotStore) open(sealed []byte) (*RoomSnapshot, error) {
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("server: snapshot: truncated record")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("server: snapshot: decrypt failed")
	}
	snap := new(RoomSnapshot)
	if err := codec.NewDecoderBytes(plaintext, cborHandle).Decode(snap); err != nil {
		return nil, fmt.Errorf("server: snapshot: decode: %w", err)
	}
	return snap, nil
}

func roomKey(roomId wire.RoomId) []byte {
	key := make([]byte, 8)
	for i := 0; i < 8; i++ {
		key[7-i] = byte(roomId >> (8 * i))
	}
	return key
}
