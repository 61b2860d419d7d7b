package storage

import (
	"testing"

	"github.com/dr0pdb/icefloedb/pkg/common"
	"github.com/stretchr/testify/assert"
)

// TestMapElementRoundTrip encodes and decodes a map entry.
func TestMapElementRoundTrip(t *testing.T) {
	e := mapSstElement{
		smallestKey:     ik("apple", 30),
		largestKey:      ik("mango", 4),
		includeSmallest: true,
		includeLargest:  false,
		noRecords:       true,
		link: []LinkTarget{
			{FileNumber: 7, Size: 1024},
			{FileNumber: 9, Size: 0},
		},
	}
	value := e.encodeValue(nil)

	var d mapSstElement
	assert.Nil(t, d.decode(e.key(), value), "Unexpected error in decoding a map element")
	assert.Equal(t, e.smallestKey, d.smallestKey)
	assert.Equal(t, e.largestKey, d.largestKey)
	assert.Equal(t, e.includeSmallest, d.includeSmallest)
	assert.Equal(t, e.includeLargest, d.includeLargest)
	assert.Equal(t, e.noRecords, d.noRecords)
	assert.Equal(t, e.link, d.link)
}

// TestMapElementDecodeCorruption rejects truncated and malformed values.
func TestMapElementDecodeCorruption(t *testing.T) {
	e := mapSstElement{
		smallestKey:     ik("a", 9),
		largestKey:      ik("z", 1),
		includeSmallest: true,
		includeLargest:  true,
		link:            []LinkTarget{{FileNumber: 3, Size: 64}},
	}
	value := e.encodeValue(nil)

	var d mapSstElement
	for cut := 0; cut < len(value); cut++ {
		err := d.decode(e.key(), value[:cut])
		assert.NotNil(t, err, "Truncated value at %d bytes must not decode", cut)
		assert.True(t, common.IsCorruption(err), "Truncation must surface as corruption")
	}

	err := d.decode([]byte("short"), value)
	assert.True(t, common.IsCorruption(err), "A key without a footer must surface as corruption")

	empty := mapSstElement{
		smallestKey:     ik("a", 9),
		largestKey:      ik("z", 1),
		includeSmallest: true,
		includeLargest:  true,
	}
	err = d.decode(empty.key(), empty.encodeValue(nil))
	assert.True(t, common.IsCorruption(err), "An empty link list must surface as corruption")
}

// TestInternalKeyPacking pins the footer layout.
func TestInternalKeyPacking(t *testing.T) {
	k := NewInternalKey([]byte("user"), 42, KeyKindSet)
	assert.Equal(t, []byte("user"), k.UserKey())
	assert.Equal(t, uint64(42), k.SequenceNumber())
	assert.Equal(t, KeyKindSet, k.Kind())

	max := NewMaxInternalKey([]byte("user"))
	assert.Equal(t, maxInternalFooter, max.Footer(), "The sentinel footer must be all ones")
	assert.Equal(t, maxSequenceNumber, max.SequenceNumber())

	icomp := newInternalKeyComparator(DefaultComparator)
	assert.Equal(t, -1, icomp.Compare(max, k), "The sentinel sorts before every real key of the user key")
	assert.Equal(t, -1, icomp.Compare(ik("user", 50), ik("user", 10)),
		"Newer sequences sort before older ones for the same user key")
	assert.Equal(t, -1, icomp.Compare(ik("alpha", 1), ik("beta", 99)),
		"User key ordering dominates the footer")
}
