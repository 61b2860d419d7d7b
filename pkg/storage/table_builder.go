package storage

import (
	"encoding/binary"

	"github.com/dr0pdb/icefloedb/pkg/common"
	"github.com/golang/snappy"
)

const (
	// tableMagic marks the tail of every table file.
	tableMagic uint32 = 0x1cef10eb

	tableFooterSize = 8
)

// tableBuilder writes a table file: a snappy compressed entry section followed
// by a varint property block and a fixed footer.
//
// Entries must be added in strictly ascending internal key order.
type tableBuilder struct {
	f    writableFile
	name string

	icomp *internalKeyComparator

	// buf accumulates the uncompressed entry section.
	buf        []byte
	numEntries uint64
	lastKey    InternalKey

	prop TableProperty

	smallestSeqno uint64
	largestSeqno  uint64

	err error
}

// newTableBuilder starts a table file on f.
func newTableBuilder(f writableFile, name string, icomp *internalKeyComparator,
	purpose TablePurpose, creationTime uint64) *tableBuilder {
	return &tableBuilder{
		f:     f,
		name:  name,
		icomp: icomp,
		prop: TableProperty{
			Purpose:      purpose,
			CreationTime: creationTime,
		},
		smallestSeqno: maxSequenceNumber,
	}
}

// add appends one entry. key must sort strictly after every key added before.
func (b *tableBuilder) add(key, value []byte) error {
	if b.err != nil {
		return b.err
	}
	ik := InternalKey(key)
	if !ik.Valid() {
		b.err = common.NewCorruptionError("table builder got a malformed internal key")
		return b.err
	}
	if b.lastKey != nil && b.icomp.Compare(b.lastKey, key) >= 0 {
		b.err = common.NewCorruptionError("table builder got keys out of order")
		return b.err
	}
	b.lastKey = ik.Clone()

	b.buf = binary.AppendUvarint(b.buf, uint64(len(key)))
	b.buf = append(b.buf, key...)
	b.buf = binary.AppendUvarint(b.buf, uint64(len(value)))
	b.buf = append(b.buf, value...)
	b.numEntries++

	if seq := ik.SequenceNumber(); seq != maxSequenceNumber {
		if seq < b.smallestSeqno {
			b.smallestSeqno = seq
		}
		if seq > b.largestSeqno {
			b.largestSeqno = seq
		}
	}
	return nil
}

// setDependence records the file numbers the table links to. Map tables only.
func (b *tableBuilder) setDependence(dependence []uint64) {
	b.prop.Dependence = dependence
}

// setReadAmp records the max link fan-out of the table. Map tables only.
func (b *tableBuilder) setReadAmp(readAmp int) {
	b.prop.ReadAmp = readAmp
}

// entriesCount returns the number of entries added so far.
func (b *tableBuilder) entriesCount() uint64 {
	return b.numEntries
}

// finish compresses and writes the entry section, the properties and the
// footer, then syncs and closes the file. Returns the final file size.
func (b *tableBuilder) finish() (uint64, error) {
	if b.err != nil {
		b.abandon()
		return 0, b.err
	}

	block := snappy.Encode(nil, b.buf)

	props := make([]byte, 0, 64)
	props = binary.AppendUvarint(props, uint64(b.prop.Purpose))
	props = binary.AppendUvarint(props, b.prop.CreationTime)
	props = binary.AppendUvarint(props, uint64(b.prop.ReadAmp))
	props = binary.AppendUvarint(props, b.smallestSeqno)
	props = binary.AppendUvarint(props, b.largestSeqno)
	props = binary.AppendUvarint(props, b.numEntries)
	props = binary.AppendUvarint(props, uint64(len(b.buf)))
	props = binary.AppendUvarint(props, uint64(len(b.prop.Dependence)))
	for _, fn := range b.prop.Dependence {
		props = binary.AppendUvarint(props, fn)
	}

	var footer [tableFooterSize]byte
	binary.LittleEndian.PutUint32(footer[:4], uint32(len(props)))
	binary.LittleEndian.PutUint32(footer[4:], tableMagic)

	for _, part := range [][]byte{block, props, footer[:]} {
		if _, err := b.f.Write(part); err != nil {
			b.err = common.NewIOError("table builder write failed", err)
			b.abandon()
			return 0, b.err
		}
	}
	if err := b.f.Sync(); err != nil {
		b.err = common.NewIOError("table builder sync failed", err)
		b.abandon()
		return 0, b.err
	}
	if err := b.f.Close(); err != nil {
		b.err = common.NewIOError("table builder close failed", err)
		return 0, b.err
	}
	return uint64(len(block) + len(props) + tableFooterSize), nil
}

// abandon drops the half written file handle. The caller owns removing the
// file itself.
func (b *tableBuilder) abandon() {
	if b.f != nil {
		b.f.Close()
		b.f = nil
	}
}
