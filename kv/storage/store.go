package storage

import (
	"encoding/binary"
	"sync"

	"github.com/dgryski/go-farm"
	"github.com/google/btree"
	"github.com/pingcap-incubator/tinydur/kv/message"
)

const btreeDegree = 32

// Item is one versioned key. Items handed out by the store are copies.
type Item struct {
	Key     string        `json:"key"`
	Value   message.Value `json:"value"`
	Version int64         `json:"version"`
}

func (it *Item) Less(than btree.Item) bool {
	return it.Key < than.(*Item).Key
}

// Store is the versioned key/value map owned by one replica. It is ordered by
// key so that dumps and digests are deterministic. Reads take the shared
// lock, Update takes the exclusive lock for its whole callback.
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func NewStore() *Store {
	return &Store{tree: btree.New(btreeDegree)}
}

// Get returns the current value and version of key, or (0, 0) when the key
// has never been written.
func (s *Store) Get(key string) (message.Value, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if it := s.get(key); it != nil {
		return it.Value, it.Version
	}
	return message.DefaultValue, 0
}

func (s *Store) get(key string) *Item {
	result := s.tree.Get(&Item{Key: key})
	if result == nil {
		return nil
	}
	return result.(*Item)
}

// Txn is the view handed to an Update callback. It is only valid inside the
// callback and writes are visible immediately; there is no rollback, so a
// callback must decide before it writes.
type Txn struct {
	s *Store
}

// Version returns the current version of key and whether the key exists.
func (txn *Txn) Version(key string) (int64, bool) {
	if it := txn.s.get(key); it != nil {
		return it.Version, true
	}
	return 0, false
}

// Put stores value under key with the next version and returns that version.
func (txn *Txn) Put(key string, value message.Value) int64 {
	var version int64 = 1
	if it := txn.s.get(key); it != nil {
		version = it.Version + 1
	}
	stored := make(message.Value, len(value))
	copy(stored, value)
	txn.s.tree.ReplaceOrInsert(&Item{Key: key, Value: stored, Version: version})
	return version
}

// Update runs fn while holding the exclusive lock.
func (s *Store) Update(fn func(txn *Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Txn{s: s})
}

// Len returns the number of keys ever written.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Items returns a key-ordered snapshot of the store.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Item, 0, s.tree.Len())
	s.tree.Ascend(func(i btree.Item) bool {
		items = append(items, *i.(*Item))
		return true
	})
	return items
}

// Digest fingerprints every (key, value, version) in key order. Replicas that
// applied the same transactions in the same order have equal digests.
func (s *Store) Digest() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var buf []byte
	var scratch [binary.MaxVarintLen64]byte
	// Key and value are length-prefixed, since keys may hold any byte.
	s.tree.Ascend(func(i btree.Item) bool {
		it := i.(*Item)
		n := binary.PutUvarint(scratch[:], uint64(len(it.Key)))
		buf = append(buf, scratch[:n]...)
		buf = append(buf, it.Key...)
		n = binary.PutUvarint(scratch[:], uint64(len(it.Value)))
		buf = append(buf, scratch[:n]...)
		buf = append(buf, it.Value...)
		n = binary.PutVarint(scratch[:], it.Version)
		buf = append(buf, scratch[:n]...)
		return true
	})
	return farm.Fingerprint64(buf)
}
