package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTripOnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	marks := map[string][]string{"orderA": {"item1", "item2"}}
	require.NoError(t, s.PutJSON("markedItems", marks))
	require.NoError(t, s.Close())

	// Reopen to prove the value survived the restart.
	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	var got map[string][]string
	ok, err := s.GetJSON("markedItems", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, marks, got)
}

func TestStoreMissingKey(t *testing.T) {
	s, err := OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	var got []string
	ok, err := s.GetJSON("deletedOrderIds", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStoreDelete(t *testing.T) {
	s, err := OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutJSON("deletedOrderIds", []string{"1", "2"}))
	require.NoError(t, s.Delete("deletedOrderIds"))
	require.NoError(t, s.Delete("deletedOrderIds"))

	var got []string
	ok, err := s.GetJSON("deletedOrderIds", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreCorruptValue(t *testing.T) {
	s, err := OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.db.Put(key("markedItems"), []byte("{not json"), nil))

	var got map[string][]string
	ok, err := s.GetJSON("markedItems", &got)
	assert.Error(t, err)
	assert.False(t, ok)
}
