package storage

// TablePurpose tags what a table file stores.
type TablePurpose uint8

const (
	// PurposeData tables store key value records.
	PurposeData TablePurpose = 0

	// PurposeMap tables store no records of their own. Each entry indexes a
	// key range onto the data tables that contribute records inside it.
	PurposeMap TablePurpose = 1
)

// FileDescriptor identifies a table file within a storage instance.
type FileDescriptor struct {
	FileNumber uint64
	PathID     uint32
	FileSize   uint64

	SmallestSeqno uint64
	LargestSeqno  uint64
}

// TableProperty is the slice of table properties the version keeps in memory.
type TableProperty struct {
	Purpose TablePurpose

	// Dependence is the sorted unique set of file numbers a map table links to.
	// Empty for data tables.
	Dependence []uint64

	// ReadAmp is the max number of data tables a point read through this table
	// may need to consult.
	ReadAmp int

	CreationTime uint64
}

// FileMetaData stores the meta data about a table file.
type FileMetaData struct {
	FD FileDescriptor

	Smallest, Largest InternalKey

	Prop TableProperty
}

// DependenceMap resolves the file numbers named by map entries to live file
// metadata. Maintained by the version, read by map-aware gets and iterators.
type DependenceMap map[uint64]*FileMetaData

// CompactionInputFiles is one level's worth of build input.
type CompactionInputFiles struct {
	Level int
	Files []*FileMetaData
}

// KeyRange is a deletion mask handed to the map builder. Both endpoints are
// internal keys; inclusivity is tracked per endpoint.
type KeyRange struct {
	Start, Limit InternalKey

	IncludeStart, IncludeLimit bool
}

// version is one published set of files, organized into levels.
//
// Level 0 files may overlap each other. Files of every other level are sorted
// by largest key and are pairwise disjoint.
type version struct {
	levels [][]*FileMetaData

	dependence DependenceMap

	prev, next *version
}

// newVersion builds a version over the given levels, indexing every file into
// the dependence map.
func newVersion(levels [][]*FileMetaData) *version {
	v := &version{
		levels:     levels,
		dependence: make(DependenceMap),
	}
	for _, level := range levels {
		for _, f := range level {
			v.dependence[f.FD.FileNumber] = f
		}
	}
	return v
}
