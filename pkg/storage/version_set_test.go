package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestVersionEditRoundTrip encodes an edit and decodes it back.
func TestVersionEditRoundTrip(t *testing.T) {
	meta := &FileMetaData{
		FD: FileDescriptor{
			FileNumber:    12,
			PathID:        1,
			FileSize:      4096,
			SmallestSeqno: 3,
			LargestSeqno:  17,
		},
		Smallest: ik("a", 17),
		Largest:  ik("z", 3),
	}
	meta.Prop.Purpose = PurposeMap
	meta.Prop.Dependence = []uint64{4, 7, 9}
	meta.Prop.ReadAmp = 2
	meta.Prop.CreationTime = 1700000000

	edit := &VersionEdit{
		comparatorName: "BytewiseComparator",
		nextFileNumber: 13,
	}
	edit.DeleteFile(1, 4)
	edit.DeleteFile(2, 7)
	edit.AddFile(2, meta)
	edit.AddFile(-1, &FileMetaData{FD: FileDescriptor{FileNumber: 9},
		Smallest: ik("b", 9), Largest: ik("c", 1)})

	var decoded VersionEdit
	assert.Nil(t, decoded.decode(edit.encode()), "Unexpected error in decoding a version edit")
	assert.Equal(t, edit.comparatorName, decoded.comparatorName)
	assert.Equal(t, edit.nextFileNumber, decoded.nextFileNumber)
	assert.Equal(t, edit.deletedFiles, decoded.deletedFiles)
	assert.Equal(t, len(edit.newFiles), len(decoded.newFiles))
	assert.Equal(t, -1, decoded.newFiles[1].level)
	got := decoded.newFiles[0].meta
	assert.Equal(t, meta.FD, got.FD)
	assert.Equal(t, meta.Smallest, got.Smallest)
	assert.Equal(t, meta.Largest, got.Largest)
	assert.Equal(t, meta.Prop, got.Prop)
}

// TestVersionEditDecodeCorruption rejects torn records.
func TestVersionEditDecodeCorruption(t *testing.T) {
	edit := &VersionEdit{nextFileNumber: 5}
	edit.DeleteFile(1, 4)
	data := edit.encode()

	var decoded VersionEdit
	assert.NotNil(t, decoded.decode(data[:len(data)-1]), "A truncated edit must not decode")
	assert.NotNil(t, decoded.decode([]byte{0xff, 0x01}), "An unknown tag must not decode")
}

// TestVersionSetPublishAndRecover applies edits, reopens the directory and
// checks the state came back.
func TestVersionSetPublishAndRecover(t *testing.T) {
	h := newTestHarness(t)
	vs := newTestVersionSet(h)

	f1 := h.writeDataTable(1, []testEntry{{ik("a", 5), []byte("Value1")}})
	f2 := h.writeDataTable(2, []testEntry{{ik("p", 4), []byte("Value2")}})

	edit := &VersionEdit{}
	edit.AddFile(1, f1)
	edit.AddFile(1, f2)
	assert.Nil(t, vs.LogAndApply(edit), "Unexpected error in applying an edit")

	levels, dependence := vs.Current()
	assert.Equal(t, 2, len(levels[1]))
	assert.Equal(t, f1, levels[1][0], "Level files must be sorted by largest key")
	assert.NotNil(t, dependence[1])
	assert.NotNil(t, dependence[2])

	assert.Nil(t, vs.Close())

	// reopen and verify recovery
	vs2, err := NewVersionSet(h.dir, h.opts, h.cache)
	assert.Nil(t, err, "Unexpected error in reopening the version set")
	defer vs2.Close()
	levels2, dependence2 := vs2.Current()
	assert.Equal(t, 2, len(levels2[1]), "Recovery must restore the level files")
	assert.Equal(t, uint64(1), levels2[1][0].FD.FileNumber)
	assert.Equal(t, 2, len(dependence2))
	assert.True(t, vs2.NewFileNumber() >= 100, "Recovery must restore the file number allocator")
}

// TestVersionSetKeepsMapDependence keeps data files resolvable while a live
// map links them, and evicts them once nothing does.
func TestVersionSetKeepsMapDependence(t *testing.T) {
	h := newTestHarness(t)
	vs := newTestVersionSet(h)

	f1 := h.writeDataTable(1, []testEntry{{ik("a", 10), []byte("Value1")}, {ik("m", 5), []byte("Value2")}})
	f2 := h.writeDataTable(2, []testEntry{{ik("g", 8), []byte("Value3")}, {ik("z", 3), []byte("Value4")}})

	edit := &VersionEdit{}
	edit.AddFile(0, f1)
	edit.AddFile(0, f2)
	assert.Nil(t, vs.LogAndApply(edit))

	_, dependence := vs.Current()
	buildEdit := &VersionEdit{}
	builder := NewMapBuilder(1, h.opts, vs, h.cache)
	mapMeta, err := builder.Build(
		[]CompactionInputFiles{{Level: 0, Files: []*FileMetaData{f1, f2}}},
		nil, nil, 2, 0, dependence, buildEdit)
	assert.Nil(t, err)
	assert.NotNil(t, mapMeta)
	assert.Nil(t, vs.LogAndApply(buildEdit))

	levels, dependence := vs.Current()
	assert.Equal(t, 0, len(levels[0]), "The inputs must leave their level")
	assert.Equal(t, 1, len(levels[2]))
	assert.NotNil(t, dependence[1], "A linked data file must stay resolvable")
	assert.NotNil(t, dependence[2])

	// a lookup through the published version still works
	gctx := NewGetContext(DefaultComparator, []byte("g"))
	assert.Nil(t, h.cache.Get(ReadOptions{}, levels[2][0], NewMaxInternalKey([]byte("g")), gctx, dependence))
	assert.True(t, gctx.Found())
	assert.Equal(t, []byte("Value3"), gctx.Value())

	// deleting the map releases the data files and evicts them
	dropEdit := &VersionEdit{}
	dropEdit.DeleteFile(2, mapMeta.FD.FileNumber)
	dropEdit.DeleteFile(-1, 1)
	dropEdit.DeleteFile(-1, 2)
	assert.Nil(t, vs.LogAndApply(dropEdit))
	_, dependence = vs.Current()
	assert.Equal(t, 0, len(dependence), "Nothing may stay resolvable after the drop")
}
