package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTableRoundTrip writes a data table and reads it back through a fresh
// reader.
func TestTableRoundTrip(t *testing.T) {
	h := newTestHarness(t)

	entries := []testEntry{
		{ik("apple", 9), []byte("Value1")},
		{ik("apple", 4), []byte("Value2")},
		{dk("banana", 7), nil},
		{ik("cherry", 3), []byte("Value3")},
	}
	meta := h.writeDataTable(11, entries)
	assert.Equal(t, uint64(3), meta.FD.SmallestSeqno)
	assert.Equal(t, uint64(9), meta.FD.LargestSeqno)

	reader, err := newTableReader(h.opts.Fs, tableFileName(h.opts.DbPaths, 0, 11), h.icomp)
	assert.Nil(t, err, "Unexpected error in opening the table")
	assert.Equal(t, PurposeData, reader.properties().Purpose)
	assert.Equal(t, uint64(1), reader.properties().CreationTime)

	iter := reader.newIterator()
	defer iter.Close()

	iter.SeekToFirst()
	for _, e := range entries {
		assert.True(t, iter.Valid(), "Iterator ended early")
		assert.Equal(t, []byte(e.key), iter.Key())
		assert.Equal(t, e.value, append([]byte(nil), iter.Value()...))
		iter.Next()
	}
	assert.False(t, iter.Valid(), "Iterator should be exhausted after the last entry")

	iter.Seek(ik("apple", 5))
	assert.True(t, iter.Valid())
	assert.Equal(t, []byte(ik("apple", 4)), iter.Key(),
		"Seek must land on the first entry at or after the target")

	iter.SeekForPrev(ik("banana", 2))
	assert.True(t, iter.Valid())
	assert.Equal(t, []byte(dk("banana", 7)), iter.Key(),
		"SeekForPrev must land on the last entry at or before the target")

	iter.SeekToLast()
	assert.True(t, iter.Valid())
	assert.Equal(t, []byte(ik("cherry", 3)), iter.Key())
	iter.Prev()
	assert.True(t, iter.Valid())
	assert.Equal(t, []byte(dk("banana", 7)), iter.Key())
}

// TestTableApproximateOffsets checks offsets are monotone in key order and
// bounded by the section size.
func TestTableApproximateOffsets(t *testing.T) {
	h := newTestHarness(t)

	var entries []testEntry
	for _, u := range []string{"aa", "bb", "cc", "dd", "ee"} {
		entries = append(entries, testEntry{ik(u, 5), []byte("payload-" + u)})
	}
	h.writeDataTable(3, entries)

	reader, err := newTableReader(h.opts.Fs, tableFileName(h.opts.DbPaths, 0, 3), h.icomp)
	assert.Nil(t, err)

	last := uint64(0)
	for _, e := range entries {
		off := reader.approximateOffsetOf(e.key)
		assert.True(t, off >= last, "Offsets must be monotone in key order")
		last = off
	}
	assert.Equal(t, uint64(0), reader.approximateOffsetOf(ik("a", 9)),
		"A key before the first entry maps to offset zero")
	assert.Equal(t, reader.rawSize, reader.approximateOffsetOf(ik("zz", 1)),
		"A key past the last entry maps to the section size")
}

// TestTableGetVisibility checks sequence visibility and deletion shadowing.
func TestTableGetVisibility(t *testing.T) {
	h := newTestHarness(t)

	entries := []testEntry{
		{ik("k", 18), []byte("v18")},
		{dk("k", 10), nil},
		{ik("k", 3), []byte("v3")},
	}
	h.writeDataTable(5, entries)
	reader, err := newTableReader(h.opts.Fs, tableFileName(h.opts.DbPaths, 0, 5), h.icomp)
	assert.Nil(t, err)

	// read at the latest sequence sees the newest record
	gctx := NewGetContext(DefaultComparator, []byte("k"))
	assert.Nil(t, reader.get(NewMaxInternalKey([]byte("k")), gctx))
	assert.True(t, gctx.Found())
	assert.Equal(t, []byte("v18"), gctx.Value())

	// read below the newest record sees the tombstone
	gctx = NewGetContext(DefaultComparator, []byte("k"))
	assert.Nil(t, reader.get(ik("k", 12), gctx))
	assert.True(t, gctx.Deleted(), "The tombstone at seq 10 shadows v3 for a read at seq 12")

	// read below the tombstone sees the old value
	gctx = NewGetContext(DefaultComparator, []byte("k"))
	assert.Nil(t, reader.get(ik("k", 4), gctx))
	assert.True(t, gctx.Found())
	assert.Equal(t, []byte("v3"), gctx.Value())

	// another user key is invisible
	gctx = NewGetContext(DefaultComparator, []byte("q"))
	assert.Nil(t, reader.get(NewMaxInternalKey([]byte("q")), gctx))
	assert.False(t, gctx.isFinished())
}
