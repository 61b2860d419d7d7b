package storage

import (
	"encoding/binary"

	"github.com/dr0pdb/icefloedb/pkg/common"
)

// LinkTarget is one (file number, size) reference inside a map entry. size is
// the approximate byte span the linked file contributes inside the entry's
// range. It only feeds read amplification and size planning.
type LinkTarget struct {
	FileNumber uint64
	Size       uint64
}

// Flag bits of the encoded map element. Part of the file format, don't change.
const (
	flagIncludeSmallest = 1 << 0
	flagIncludeLargest  = 1 << 1
	flagNoSmallest      = 1 << 2
	flagNoRecords       = 1 << 3
)

// mapSstElement is one decoded entry of a map table.
//
// On disk the entry's KEY is the element's largest internal key, so that a
// range scan seeked to a lookup key lands on the element covering it. The
// value encodes, in order:
//    varint flags
//    varint link count
//    length-prefixed smallest key (omitted when flagNoSmallest is set)
//    link count x (varint file number, varint size)
type mapSstElement struct {
	smallestKey InternalKey
	largestKey  InternalKey

	includeSmallest bool
	includeLargest  bool

	// noRecords is set when no linked file contributes a record in the range.
	noRecords bool

	link []LinkTarget
}

// key returns the table key of the element.
func (e *mapSstElement) key() []byte {
	return e.largestKey
}

// encodeValue appends the encoded value of the element to buf and returns it.
func (e *mapSstElement) encodeValue(buf []byte) []byte {
	var flags uint64
	if e.includeSmallest {
		flags |= flagIncludeSmallest
	}
	if e.includeLargest {
		flags |= flagIncludeLargest
	}
	if e.noRecords {
		flags |= flagNoRecords
	}
	buf = binary.AppendUvarint(buf, flags)
	buf = binary.AppendUvarint(buf, uint64(len(e.link)))
	buf = binary.AppendUvarint(buf, uint64(len(e.smallestKey)))
	buf = append(buf, e.smallestKey...)
	for _, l := range e.link {
		buf = binary.AppendUvarint(buf, l.FileNumber)
		buf = binary.AppendUvarint(buf, l.Size)
	}
	return buf
}

// decode parses a map table entry. key and value are retained by reference,
// the caller owns their stability.
func (e *mapSstElement) decode(key, value []byte) error {
	if !InternalKey(key).Valid() {
		return common.NewCorruptionError("Map sst invalid key or value")
	}
	e.largestKey = key

	flags, n := binary.Uvarint(value)
	if n <= 0 {
		return common.NewCorruptionError("Map sst invalid key or value")
	}
	value = value[n:]
	linkCount, n := binary.Uvarint(value)
	if n <= 0 {
		return common.NewCorruptionError("Map sst invalid key or value")
	}
	value = value[n:]

	e.includeSmallest = flags&flagIncludeSmallest != 0
	e.includeLargest = flags&flagIncludeLargest != 0
	e.noRecords = flags&flagNoRecords != 0

	if flags&flagNoSmallest != 0 {
		e.smallestKey = nil
	} else {
		klen, n := binary.Uvarint(value)
		if n <= 0 || uint64(len(value[n:])) < klen {
			return common.NewCorruptionError("Map sst invalid key or value")
		}
		value = value[n:]
		e.smallestKey = InternalKey(value[:klen])
		if !e.smallestKey.Valid() {
			return common.NewCorruptionError("Map sst invalid key or value")
		}
		value = value[klen:]
	}

	e.link = e.link[:0]
	for i := uint64(0); i < linkCount; i++ {
		fileNumber, n := binary.Uvarint(value)
		if n <= 0 {
			return common.NewCorruptionError("Map sst invalid link_value")
		}
		value = value[n:]
		size, n := binary.Uvarint(value)
		if n <= 0 {
			return common.NewCorruptionError("Map sst invalid link_value")
		}
		value = value[n:]
		e.link = append(e.link, LinkTarget{FileNumber: fileNumber, Size: size})
	}
	if linkCount == 0 {
		return common.NewCorruptionError("Map sst empty link list")
	}
	return nil
}
