package cell

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func dictValue(t require.TestingT, v uint64) *Cell {
	c, err := NewBuilder().StoreUint64(v).Build()
	require.NoError(t, err)
	return c
}

func TestDictBuildAndGet(t *testing.T) {
	var addr [32]byte
	addr[0] = 0x11

	entries := []DictEntry{
		{Key: DictKey(addr, 100), Value: dictValue(t, 1)},
		{Key: DictKey(addr, 200), Value: dictValue(t, 2)},
		{Key: DictKey([32]byte{0xff}, 100), Value: dictValue(t, 3)},
	}

	root, err := BuildDict(entries, DictKeyBits)
	require.NoError(t, err)

	for _, e := range entries {
		value, path, err := DictGet(root, e.Key, DictKeyBits)
		require.NoError(t, err)
		require.NotNil(t, value)
		assert.Equal(t, e.Value.Hash(), value.Hash())
		assert.NotEmpty(t, path)
	}

	// missing key
	value, path, err := DictGet(root, DictKey(addr, 300), DictKeyBits)
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.Nil(t, path)
}

func TestDictRejectsDuplicates(t *testing.T) {
	var addr [32]byte
	entries := []DictEntry{
		{Key: DictKey(addr, 1), Value: dictValue(t, 1)},
		{Key: DictKey(addr, 1), Value: dictValue(t, 2)},
	}
	_, err := BuildDict(entries, DictKeyBits)
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

// The path returned by DictGet must be a valid keep path: pruning with it
// keeps exactly the queried entry reachable.
func TestDictPathIsKeepPath(t *testing.T) {
	entries := make([]DictEntry, 0, 16)
	for i := 0; i < 16; i++ {
		var addr [32]byte
		binary.BigEndian.PutUint32(addr[:4], uint32(i*7+1))
		entries = append(entries, DictEntry{
			Key:   DictKey(addr, uint64(1000+i)),
			Value: dictValue(t, uint64(i)),
		})
	}

	root, err := BuildDict(entries, DictKeyBits)
	require.NoError(t, err)

	target := entries[5]
	value, path, err := DictGet(root, target.Key, DictKeyBits)
	require.NoError(t, err)
	require.NotNil(t, value)

	pruned, err := Prune(root, []KeepPath{path})
	require.NoError(t, err)
	assert.Equal(t, root.Hash(), pruned.Hash())

	prunedValue, _, err := DictGet(pruned, target.Key, DictKeyBits)
	require.NoError(t, err)
	require.NotNil(t, prunedValue)
	assert.Equal(t, target.Value.Hash(), prunedValue.Hash())
}

func TestDictProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 32).Draw(t, "n").(int)

		seen := map[uint64]bool{}
		entries := make([]DictEntry, 0, n)
		for i := 0; i < n; i++ {
			lt := rapid.Uint64().Draw(t, "lt").(uint64)
			if seen[lt] {
				continue
			}
			seen[lt] = true

			var addr [32]byte
			addr[31] = byte(lt)
			entries = append(entries, DictEntry{
				Key:   DictKey(addr, lt),
				Value: dictValue(t, lt),
			})
		}

		root, err := BuildDict(entries, DictKeyBits)
		require.NoError(t, err)

		for _, e := range entries {
			value, _, err := DictGet(root, e.Key, DictKeyBits)
			require.NoError(t, err)
			require.NotNil(t, value)
			require.Equal(t, e.Value.Hash(), value.Hash())
		}
	})
}
