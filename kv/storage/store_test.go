package storage

import (
	"testing"

	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(s *Store, key string, value int64) int64 {
	var version int64
	_ = s.Update(func(txn *Txn) error {
		version = txn.Put(key, message.IntValue(value))
		return nil
	})
	return version
}

func TestDefaultRead(t *testing.T) {
	s := NewStore()
	value, version := s.Get("never-written")
	assert.Equal(t, "0", string(value))
	assert.Equal(t, int64(0), version)
	assert.Equal(t, 0, s.Len())
}

func TestVersionMonotonicity(t *testing.T) {
	s := NewStore()
	for i := int64(1); i <= 5; i++ {
		assert.Equal(t, i, put(s, "x", i*10))
		value, version := s.Get("x")
		assert.Equal(t, i, version)
		assert.Equal(t, message.IntValue(i*10), value)
	}
	assert.Equal(t, int64(1), put(s, "y", 1))
	assert.Equal(t, 2, s.Len())
}

func TestTxnVersion(t *testing.T) {
	s := NewStore()
	put(s, "a", 1)
	require.Nil(t, s.Update(func(txn *Txn) error {
		version, ok := txn.Version("a")
		assert.True(t, ok)
		assert.Equal(t, int64(1), version)
		_, ok = txn.Version("b")
		assert.False(t, ok)
		return nil
	}))
}

func TestPutCopiesValue(t *testing.T) {
	s := NewStore()
	value := message.Value(`"abc"`)
	_ = s.Update(func(txn *Txn) error {
		txn.Put("k", value)
		return nil
	})
	value[1] = 'z'
	got, _ := s.Get("k")
	assert.Equal(t, `"abc"`, string(got))
}

func TestItemsOrdered(t *testing.T) {
	s := NewStore()
	put(s, "c", 3)
	put(s, "a", 1)
	put(s, "b", 2)
	put(s, "a", 11)

	items := s.Items()
	require.Len(t, items, 3)
	assert.Equal(t, Item{Key: "a", Value: message.IntValue(11), Version: 2}, items[0])
	assert.Equal(t, "b", items[1].Key)
	assert.Equal(t, "c", items[2].Key)
}

func TestDigest(t *testing.T) {
	s1, s2 := NewStore(), NewStore()
	assert.Equal(t, s1.Digest(), s2.Digest())

	put(s1, "a", 1)
	put(s1, "b", 2)
	put(s2, "b", 2)
	put(s2, "a", 1)
	assert.Equal(t, s1.Digest(), s2.Digest())

	put(s2, "a", 1)
	assert.NotEqual(t, s1.Digest(), s2.Digest(), "same values, different versions")
}

func TestDigestKeysWithNUL(t *testing.T) {
	s1, s2 := NewStore(), NewStore()
	_ = s1.Update(func(txn *Txn) error {
		txn.Put("a\x00b", message.Value(`"c"`))
		return nil
	})
	_ = s2.Update(func(txn *Txn) error {
		txn.Put("a", message.Value("b\x00\"c\""))
		return nil
	})
	assert.NotEqual(t, s1.Digest(), s2.Digest())
}
