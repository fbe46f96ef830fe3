// Package storetest holds the behaviour every store.Store implementation
// must share. Each backend runs it from its own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/flowcanvas/store"
)

func Run(t *testing.T, s store.Store) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, s) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, s) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, s) })
	t.Run("List", func(t *testing.T) { testList(t, s) })
	t.Run("ListEmpty", func(t *testing.T) { testListEmpty(t, s) })
	t.Run("BinaryData", func(t *testing.T) { testBinaryData(t, s) })
}

func testSetAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.Set(ctx, "/test/", "key1", []byte("value1"))
	assert.Nil(t, err)

	value, err := s.Get(ctx, "/test/", "key1")
	assert.Nil(t, err)
	assert.Equal(t, []byte("value1"), value)

	value, err = s.Get(ctx, "/test/", "non-existent")
	assert.Nil(t, err)
	assert.Nil(t, value)

	value, err = s.Get(ctx, "/other/", "key1")
	assert.Nil(t, err)
	assert.Nil(t, value)

	assert.Nil(t, s.Remove(ctx, "/test/", "key1"))
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()

	assert.Nil(t, s.Set(ctx, "/test/", "key1", []byte("value1")))
	assert.Nil(t, s.Set(ctx, "/test/", "key1", []byte("value2")))

	value, err := s.Get(ctx, "/test/", "key1")
	assert.Nil(t, err)
	assert.Equal(t, []byte("value2"), value)

	assert.Nil(t, s.Remove(ctx, "/test/", "key1"))
}

func testRemove(t *testing.T, s store.Store) {
	ctx := context.Background()

	assert.Nil(t, s.Set(ctx, "/test/", "key1", []byte("value1")))
	assert.Nil(t, s.Remove(ctx, "/test/", "key1"))

	value, err := s.Get(ctx, "/test/", "key1")
	assert.Nil(t, err)
	assert.Nil(t, value)

	// removing a missing key is not an error
	assert.Nil(t, s.Remove(ctx, "/test/", "non-existent"))
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()

	assert.Nil(t, s.Set(ctx, "/test/", "key1", []byte("value1")))
	assert.Nil(t, s.Set(ctx, "/test/", "key2", []byte("value2")))
	assert.Nil(t, s.Set(ctx, "/test/", "key3", []byte("value3")))
	assert.Nil(t, s.Set(ctx, "/other/", "key1", []byte("other1")))

	keys := make([]string, 0)
	err := s.List(ctx, "/test/", func(key string) bool {
		keys = append(keys, key)
		return true
	})
	assert.Nil(t, err)
	assert.ElementsMatch(t, []string{"key1", "key2", "key3"}, keys)

	count := 0
	err = s.List(ctx, "/test/", func(key string) bool {
		count++
		return count < 2
	})
	assert.Nil(t, err)
	assert.Equal(t, 2, count)

	s.Remove(ctx, "/test/", "key1")
	s.Remove(ctx, "/test/", "key2")
	s.Remove(ctx, "/test/", "key3")
	s.Remove(ctx, "/other/", "key1")
}

func testListEmpty(t *testing.T, s store.Store) {
	ctx := context.Background()

	keys := make([]string, 0)
	err := s.List(ctx, "/non-existent/", func(key string) bool {
		keys = append(keys, key)
		return true
	})
	assert.Nil(t, err)
	assert.Empty(t, keys)
}

func testBinaryData(t *testing.T, s store.Store) {
	ctx := context.Background()

	binaryData := []byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD}
	assert.Nil(t, s.Set(ctx, "/test/", "binary", binaryData))

	value, err := s.Get(ctx, "/test/", "binary")
	assert.Nil(t, err)
	assert.Equal(t, binaryData, value)

	assert.Nil(t, s.Remove(ctx, "/test/", "binary"))
}
