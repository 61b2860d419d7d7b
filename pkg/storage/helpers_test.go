package storage

import (
	"path"
	"testing"

	"github.com/dr0pdb/icefloedb/test"
	"github.com/stretchr/testify/assert"
)

var testDirectory = path.Join("/tmp", "icefloetest")

// ik builds an internal key for a set record.
func ik(userKey string, seq uint64) InternalKey {
	return NewInternalKey([]byte(userKey), seq, KeyKindSet)
}

// dk builds an internal key for a deletion record.
func dk(userKey string, seq uint64) InternalKey {
	return NewInternalKey([]byte(userKey), seq, KeyKindDelete)
}

type testEntry struct {
	key   InternalKey
	value []byte
}

// testHarness wires a table cache over a scratch directory.
type testHarness struct {
	t     *testing.T
	dir   string
	opts  *Options
	cache *TableCache
	icomp *internalKeyComparator
}

func newTestHarness(t *testing.T) *testHarness {
	dir := path.Join(testDirectory, t.Name())
	test.CreateTestDirectory(dir)
	t.Cleanup(func() { test.CleanupTestDirectory(dir) })

	opts := &Options{DbPaths: []string{dir}}
	opts.applyDefaults()
	cache := NewTableCache(opts)
	return &testHarness{
		t:     t,
		dir:   dir,
		opts:  opts,
		cache: cache,
		icomp: cache.icomp,
	}
}

// writeDataTable persists a data table with the given entries, which must be
// in ascending internal key order.
func (h *testHarness) writeDataTable(fileNumber uint64, entries []testEntry) *FileMetaData {
	name := tableFileName(h.opts.DbPaths, 0, fileNumber)
	wf, err := h.opts.Fs.create(name)
	assert.Nil(h.t, err, "Unexpected error in creating table file")

	b := newTableBuilder(wf, name, h.icomp, PurposeData, 1)
	for _, e := range entries {
		assert.Nil(h.t, b.add(e.key, e.value), "Unexpected error in adding table entry")
	}
	size, err := b.finish()
	assert.Nil(h.t, err, "Unexpected error in finishing table file")

	meta := &FileMetaData{
		FD: FileDescriptor{
			FileNumber:    fileNumber,
			FileSize:      size,
			SmallestSeqno: b.smallestSeqno,
			LargestSeqno:  b.largestSeqno,
		},
		Smallest: entries[0].key.Clone(),
		Largest:  entries[len(entries)-1].key.Clone(),
	}
	meta.Prop.Purpose = PurposeData
	meta.Prop.CreationTime = 1
	return meta
}

// writeMapTable persists a map table from already finalized elements, which
// must be in ascending largest key order.
func (h *testHarness) writeMapTable(fileNumber uint64, elements []mapSstElement) *FileMetaData {
	name := tableFileName(h.opts.DbPaths, 0, fileNumber)
	wf, err := h.opts.Fs.create(name)
	assert.Nil(h.t, err, "Unexpected error in creating map file")

	b := newTableBuilder(wf, name, h.icomp, PurposeMap, 1)
	depSet := make(map[uint64]struct{})
	readAmp := 0
	for i := range elements {
		e := &elements[i]
		assert.Nil(h.t, b.add(e.key(), e.encodeValue(nil)), "Unexpected error in adding map entry")
		for _, l := range e.link {
			depSet[l.FileNumber] = struct{}{}
		}
		if len(e.link) > readAmp {
			readAmp = len(e.link)
		}
	}
	dependence := make([]uint64, 0, len(depSet))
	for fn := range depSet {
		dependence = append(dependence, fn)
	}
	b.setDependence(dependence)
	b.setReadAmp(readAmp)
	size, err := b.finish()
	assert.Nil(h.t, err, "Unexpected error in finishing map file")

	meta := &FileMetaData{
		FD: FileDescriptor{FileNumber: fileNumber, FileSize: size},
		Smallest: elements[0].smallestKey.Clone(),
		Largest:  elements[len(elements)-1].largestKey.Clone(),
	}
	meta.Prop.Purpose = PurposeMap
	meta.Prop.Dependence = dependence
	meta.Prop.ReadAmp = readAmp
	meta.Prop.CreationTime = 1
	return meta
}
