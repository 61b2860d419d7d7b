package storage

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"sort"

	"github.com/dr0pdb/icefloedb/pkg/common"
	"github.com/golang/snappy"
)

// tableEntry is one decoded entry of an open table. key and value alias the
// reader's decompressed entry section. offset is the entry's position in the
// uncompressed section, so approximate offsets are stable across runs.
type tableEntry struct {
	key    []byte
	value  []byte
	offset uint64
}

// tableReader is an open table file.
//
// The entry section is decompressed and indexed once at open. Readers are
// shared and immutable after open; all methods are safe for concurrent use.
type tableReader struct {
	entries    []tableEntry
	numEntries uint64
	rawSize    uint64

	prop          TableProperty
	smallestSeqno uint64
	largestSeqno  uint64

	icomp *internalKeyComparator
}

// newTableReader opens and fully decodes the table file at name.
func newTableReader(fs FileSystem, name string, icomp *internalKeyComparator) (*tableReader, error) {
	f, err := fs.open(name)
	if err != nil {
		return nil, common.NewIOError("cannot open table file "+name, err)
	}
	data, err := ioutil.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, common.NewIOError("cannot read table file "+name, err)
	}
	if len(data) < tableFooterSize {
		return nil, common.NewCorruptionError("table file too short: " + name)
	}

	footer := data[len(data)-tableFooterSize:]
	if binary.LittleEndian.Uint32(footer[4:]) != tableMagic {
		return nil, common.NewCorruptionError("bad table magic in " + name)
	}
	propsLen := int(binary.LittleEndian.Uint32(footer[:4]))
	if propsLen > len(data)-tableFooterSize {
		return nil, common.NewCorruptionError("bad table footer in " + name)
	}
	props := data[len(data)-tableFooterSize-propsLen : len(data)-tableFooterSize]
	block := data[:len(data)-tableFooterSize-propsLen]

	r := &tableReader{icomp: icomp}
	if err := r.decodeProps(props); err != nil {
		return nil, err
	}

	raw, err := snappy.Decode(nil, block)
	if err != nil {
		return nil, common.NewCorruptionError("cannot decompress table file " + name)
	}
	if uint64(len(raw)) != r.rawSize {
		return nil, common.NewCorruptionError("table entry section size mismatch in " + name)
	}
	if err := r.decodeEntries(raw); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *tableReader) decodeProps(props []byte) error {
	buf := bytes.NewBuffer(props)
	read := func() uint64 {
		v, _ := binary.ReadUvarint(buf)
		return v
	}
	r.prop.Purpose = TablePurpose(read())
	r.prop.CreationTime = read()
	r.prop.ReadAmp = int(read())
	r.smallestSeqno = read()
	r.largestSeqno = read()
	r.numEntries = read()
	r.rawSize = read()
	depCount := read()
	for i := uint64(0); i < depCount; i++ {
		r.prop.Dependence = append(r.prop.Dependence, read())
	}
	if buf.Len() != 0 {
		return common.NewCorruptionError("trailing bytes in table properties")
	}
	r.entries = make([]tableEntry, 0, r.numEntries)
	return nil
}

func (r *tableReader) decodeEntries(raw []byte) error {
	var off uint64
	for off < uint64(len(raw)) {
		rest := raw[off:]
		klen, n := binary.Uvarint(rest)
		if n <= 0 || uint64(len(rest[n:])) < klen {
			return common.NewCorruptionError("malformed table entry")
		}
		key := rest[n : uint64(n)+klen]
		rest = rest[uint64(n)+klen:]
		vlen, m := binary.Uvarint(rest)
		if m <= 0 || uint64(len(rest[m:])) < vlen {
			return common.NewCorruptionError("malformed table entry")
		}
		value := rest[m : uint64(m)+vlen]
		r.entries = append(r.entries, tableEntry{key: key, value: value, offset: off})
		off += uint64(n) + klen + uint64(m) + vlen
	}
	if uint64(len(r.entries)) != r.numEntries {
		return common.NewCorruptionError("table entry count mismatch")
	}
	return nil
}

// properties returns the table's property block.
func (r *tableReader) properties() *TableProperty {
	return &r.prop
}

// close drops the decoded entries. The reader is unusable afterwards.
func (r *tableReader) close() {
	r.entries = nil
}

// lowerBound returns the index of the first entry whose key is >= target.
func (r *tableReader) lowerBound(target []byte) int {
	return sort.Search(len(r.entries), func(i int) bool {
		return r.icomp.Compare(r.entries[i].key, target) >= 0
	})
}

// approximateOffsetOf returns the position of key in the uncompressed entry
// section. Keys past the last entry map to the section size.
func (r *tableReader) approximateOffsetOf(key []byte) uint64 {
	i := r.lowerBound(key)
	if i >= len(r.entries) {
		return r.rawSize
	}
	return r.entries[i].offset
}

// get runs a point lookup, feeding candidate records into gctx until it
// reports done.
func (r *tableReader) get(key InternalKey, gctx *GetContext) error {
	for i := r.lowerBound(key); i < len(r.entries); i++ {
		if !gctx.saveValue(InternalKey(r.entries[i].key), r.entries[i].value) {
			break
		}
	}
	return nil
}

// rangeScan invokes fn for each entry with key >= start, in order, until fn
// returns false.
func (r *tableReader) rangeScan(start []byte, fn func(key, value []byte) bool) {
	for i := r.lowerBound(start); i < len(r.entries); i++ {
		if !fn(r.entries[i].key, r.entries[i].value) {
			return
		}
	}
}

// newIterator returns an iterator over the table's entries. The iterator is
// positioned invalid; callers seek it first.
func (r *tableReader) newIterator() Iterator {
	return &tableIterator{reader: r, index: len(r.entries)}
}

// tableIterator iterates a tableReader's in-memory entry index.
type tableIterator struct {
	reader *tableReader

	// index in [0, len(entries)]; len(entries) means invalid.
	index int
}

func (ti *tableIterator) Valid() bool {
	return ti.index >= 0 && ti.index < len(ti.reader.entries)
}

func (ti *tableIterator) SeekToFirst() {
	ti.index = 0
}

func (ti *tableIterator) SeekToLast() {
	ti.index = len(ti.reader.entries) - 1
}

func (ti *tableIterator) Seek(target []byte) {
	ti.index = ti.reader.lowerBound(target)
}

func (ti *tableIterator) SeekForPrev(target []byte) {
	i := ti.reader.lowerBound(target)
	if i < len(ti.reader.entries) && ti.reader.icomp.Compare(ti.reader.entries[i].key, target) == 0 {
		ti.index = i
	} else {
		ti.index = i - 1
	}
}

func (ti *tableIterator) Next() {
	if !ti.Valid() {
		panic("Next on invalid table iterator")
	}
	ti.index++
}

func (ti *tableIterator) Prev() {
	if !ti.Valid() {
		panic("Prev on invalid table iterator")
	}
	ti.index--
}

func (ti *tableIterator) Key() []byte {
	return ti.reader.entries[ti.index].key
}

func (ti *tableIterator) Value() []byte {
	return ti.reader.entries[ti.index].value
}

func (ti *tableIterator) Status() error {
	return nil
}

func (ti *tableIterator) Close() error {
	ti.index = len(ti.reader.entries)
	return nil
}
