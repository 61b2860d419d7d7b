package storage

import (
	"github.com/dr0pdb/icefloedb/pkg/common"
)

const (
	defaultTableCacheSize uint32 = 64
)

// RowCache caches the result of point lookups into data tables. Implementations
// must be safe for concurrent use. A nil row cache disables caching.
type RowCache interface {
	Get(key []byte) ([]byte, bool)

	Insert(key, value []byte)
}

// Options defines all of the configuration options available with the storage layer.
type Options struct {
	// The instance of FileSystem interface that is going to be used to store data.
	// most of the times it is the DefaultFileSystem which uses the default OS file system.
	Fs FileSystem

	// Clock stamps newly written files. Defaults to the wall clock.
	Clock Clock

	// Comparator orders user keys. Defaults to bytewise ordering.
	Comparator Comparator

	// DbPaths is the set of directories table files live in, indexed by a
	// descriptor's path id.
	DbPaths []string

	// The table cache size.
	// set to zero for defaultTableCacheSize.
	CacheSize uint32

	// MaxAllowedSpace bounds the bytes of newly written table files.
	// Zero disables the limit.
	MaxAllowedSpace uint64

	// RowCache, if set, is consulted by point lookups into data tables.
	RowCache RowCache
}

// NewOptionsFromConfig builds Options from a loaded storage config.
func NewOptionsFromConfig(conf *common.StorageConfig) *Options {
	return &Options{
		DbPaths:         conf.DbPaths,
		CacheSize:       conf.TableCacheSize,
		MaxAllowedSpace: conf.MaxAllowedSpace,
	}
}

// applyDefaults fills the zero fields with defaults.
func (o *Options) applyDefaults() {
	if o.Fs == nil {
		o.Fs = DefaultFileSystem
	}
	if o.Clock == nil {
		o.Clock = DefaultClock
	}
	if o.Comparator == nil {
		o.Comparator = DefaultComparator
	}
	if o.CacheSize == 0 {
		o.CacheSize = defaultTableCacheSize
	}
}

// ReadOptions tune a single read-side operation.
type ReadOptions struct {
	// NoIO restricts the operation to already open tables. FindTable and
	// NewIterator return an IncompleteError instead of opening a file; Get
	// marks the context's KeyMayExist and returns nil.
	NoIO bool
}
