package storage

import (
	"github.com/dr0pdb/icefloedb/pkg/common"
)

// newMissingDependenceError is the corruption raised when a map entry names a
// file the dependence map doesn't know.
func newMissingDependenceError() error {
	return common.NewCorruptionError("Map sst depend files missing")
}

// createIterFunc builds an iterator (and exposes the backing reader) for one
// file. It is how the build layer reaches back into the table cache without
// depending on it directly.
type createIterFunc func(meta *FileMetaData, depMap DependenceMap) (Iterator, *tableReader, error)

type iteratorCacheEntry struct {
	meta   *FileMetaData
	reader *tableReader
	iter   Iterator
}

// iteratorCache memoizes, per file number, the reader and iterator opened for
// a single build job. A build revisits the same link targets many times while
// walking merged ranges; reopening per visit would dominate cost.
//
// Unshared: one owner per build, not thread safe.
type iteratorCache struct {
	dependence DependenceMap
	create     createIterFunc

	cache map[uint64]*iteratorCacheEntry
}

func newIteratorCache(dependence DependenceMap, create createIterFunc) *iteratorCache {
	return &iteratorCache{
		dependence: dependence,
		create:     create,
		cache:      make(map[uint64]*iteratorCacheEntry),
	}
}

// getIterator returns the memoized iterator and reader for f, opening them on
// first use.
func (ic *iteratorCache) getIterator(f *FileMetaData) (Iterator, *tableReader, error) {
	if e, ok := ic.cache[f.FD.FileNumber]; ok {
		return e.iter, e.reader, nil
	}
	iter, reader, err := ic.create(f, ic.dependence)
	if err != nil {
		return nil, nil, err
	}
	ic.cache[f.FD.FileNumber] = &iteratorCacheEntry{meta: f, reader: reader, iter: iter}
	return iter, reader, nil
}

// getIteratorByFileNumber resolves the file through the dependence map first.
func (ic *iteratorCache) getIteratorByFileNumber(fileNumber uint64) (Iterator, *tableReader, error) {
	if e, ok := ic.cache[fileNumber]; ok {
		return e.iter, e.reader, nil
	}
	f, ok := ic.dependence[fileNumber]
	if !ok {
		return nil, nil, newMissingDependenceError()
	}
	return ic.getIterator(f)
}

// getFileMetaData resolves a file number without opening anything.
func (ic *iteratorCache) getFileMetaData(fileNumber uint64) *FileMetaData {
	if e, ok := ic.cache[fileNumber]; ok {
		return e.meta
	}
	return ic.dependence[fileNumber]
}

// close releases every memoized iterator. Idempotent.
func (ic *iteratorCache) close() {
	for _, e := range ic.cache {
		e.iter.Close()
	}
	ic.cache = make(map[uint64]*iteratorCacheEntry)
}
