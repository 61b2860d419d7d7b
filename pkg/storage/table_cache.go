package storage

import (
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/dr0pdb/icefloedb/pkg/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// maxMapDepth bounds map table nesting during recursive lookups. Builds emit
// depth one; the guard keeps stack use bounded on corrupt or adversarial files.
const maxMapDepth = 8

// tableCacheEntry is one cached open table reader.
//
// refs counts the cache's own reference plus one per outstanding handle. The
// reader is closed when the count drops to zero.
type tableCacheEntry struct {
	fileNumber uint64
	reader     *tableReader

	refs    int
	inCache bool

	// the next and prev pointers of the LRU list. Most recently used entries
	// sit at dummy.next.
	next, prev *tableCacheEntry
}

// TableCache maps file numbers to open table readers.
//
// It is shared process wide and safe for concurrent use. Lookups that miss
// open the file through the file system, bounded by an LRU of size cacheSize.
// Open errors are never cached so a transient failure stays retryable.
type TableCache struct {
	opts  *Options
	icomp *internalKeyComparator

	cacheSize uint32

	mu sync.Mutex

	// map from file number to the cached entry.
	cache map[uint64]*tableCacheEntry

	// the head of the LRU list containing the cached tables.
	dummy tableCacheEntry

	// collapses concurrent opens of the same file. Correctness doesn't depend
	// on it; losing a duplicate open just wastes the work.
	group singleflight.Group
}

// NewTableCache creates a new table cache instance.
func NewTableCache(opts *Options) *TableCache {
	opts.applyDefaults()
	tc := &TableCache{
		opts:      opts,
		icomp:     newInternalKeyComparator(opts.Comparator),
		cacheSize: opts.CacheSize,
		cache:     make(map[uint64]*tableCacheEntry),
	}
	tc.dummy.next = &tc.dummy
	tc.dummy.prev = &tc.dummy
	return tc
}

func (tc *TableCache) listRemove(e *tableCacheEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next, e.prev = nil, nil
}

func (tc *TableCache) listPushFront(e *tableCacheEntry) {
	e.next = tc.dummy.next
	e.prev = &tc.dummy
	e.next.prev = e
	e.prev.next = e
}

// unref drops one reference. Closes the reader on the last one.
// REQUIRES: tc.mu held.
func (tc *TableCache) unref(e *tableCacheEntry) {
	e.refs--
	if e.refs == 0 {
		e.reader.close()
	}
}

// shrink evicts LRU tail entries until the cache is within bounds.
// Evicted entries stay alive while handles reference them.
// REQUIRES: tc.mu held.
func (tc *TableCache) shrink() {
	for uint32(len(tc.cache)) > tc.cacheSize && tc.dummy.prev != &tc.dummy {
		tail := tc.dummy.prev
		tc.listRemove(tail)
		delete(tc.cache, tail.fileNumber)
		tail.inCache = false
		tc.unref(tail)
	}
}

// FindTable resolves the reader of fd, opening the file on a miss. The caller
// owns one reference on the returned handle and must ReleaseHandle it.
//
// With noIO set a miss returns an IncompleteError without touching the file
// system.
func (tc *TableCache) FindTable(fd FileDescriptor, noIO bool) (*tableCacheEntry, error) {
	tc.mu.Lock()
	if e, ok := tc.cache[fd.FileNumber]; ok {
		e.refs++
		tc.listRemove(e)
		tc.listPushFront(e)
		tc.mu.Unlock()
		return e, nil
	}
	tc.mu.Unlock()

	if noIO {
		return nil, common.NewIncompleteError("Table not found in table_cache, no_io is set")
	}

	name := tableFileName(tc.opts.DbPaths, fd.PathID, fd.FileNumber)
	v, err, _ := tc.group.Do(strconv.FormatUint(fd.FileNumber, 10), func() (interface{}, error) {
		return newTableReader(tc.opts.Fs, name, tc.icomp)
	})
	if err != nil {
		// Errors are not cached so that if the error is transient, or
		// somebody repairs the file, we recover automatically.
		log.WithFields(log.Fields{"file": name, "error": err.Error()}).
			Error("storage::table_cache::FindTable; table open failed")
		return nil, err
	}
	reader := v.(*tableReader)

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if e, ok := tc.cache[fd.FileNumber]; ok {
		// lost the insert race; the spare reader is simply dropped
		e.refs++
		tc.listRemove(e)
		tc.listPushFront(e)
		return e, nil
	}
	e := &tableCacheEntry{
		fileNumber: fd.FileNumber,
		reader:     reader,
		refs:       2, // the cache's reference plus the returned handle
		inCache:    true,
	}
	tc.cache[fd.FileNumber] = e
	tc.listPushFront(e)
	tc.shrink()
	return e, nil
}

// ReaderOf dereferences a handle. The reader stays usable while the handle is held.
func (tc *TableCache) ReaderOf(e *tableCacheEntry) *tableReader {
	return e.reader
}

// ReleaseHandle drops one reference on the handle.
func (tc *TableCache) ReleaseHandle(e *tableCacheEntry) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.unref(e)
}

// EraseHandle releases the handle and removes the entry, so a subsequent
// FindTable re-opens the file.
func (tc *TableCache) EraseHandle(fd FileDescriptor, e *tableCacheEntry) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if cur, ok := tc.cache[fd.FileNumber]; ok && cur == e {
		tc.listRemove(cur)
		delete(tc.cache, fd.FileNumber)
		cur.inCache = false
		tc.unref(cur)
	}
	tc.unref(e)
}

// Evict removes the entry for fileNumber without needing a handle. Called when
// a file is deleted from the version.
func (tc *TableCache) Evict(fileNumber uint64) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if e, ok := tc.cache[fileNumber]; ok {
		tc.listRemove(e)
		delete(tc.cache, fileNumber)
		e.inCache = false
		tc.unref(e)
	}
}

// NewIterator resolves meta's reader and returns an iterator over it. The
// cache handle is released when the iterator is closed.
//
// If the table is a map table and dependenceMap is non empty, every map entry
// is expanded on demand into an iterator over its link targets (clipped to the
// entry's range), so the result walks logical records instead of map entries.
func (tc *TableCache) NewIterator(opts ReadOptions, meta *FileMetaData,
	dependenceMap DependenceMap) (Iterator, *tableReader, error) {
	e, err := tc.FindTable(meta.FD, opts.NoIO)
	if err != nil {
		return nil, nil, err
	}
	reader := e.reader
	var iter Iterator = reader.newIterator()
	if meta.Prop.Purpose == PurposeMap && len(dependenceMap) > 0 {
		iter = newMapSstIterator(iter, dependenceMap, tc.icomp,
			func(f *FileMetaData, depMap DependenceMap) (Iterator, error) {
				sub, _, err := tc.NewIterator(opts, f, depMap)
				return sub, err
			})
	}
	iter = newCleanupIterator(iter, func() { tc.ReleaseHandle(e) })
	return iter, reader, nil
}

// rowCacheKey disambiguates row cache entries by file number.
func rowCacheKey(fileNumber uint64, userKey []byte) []byte {
	buf := make([]byte, 0, len(userKey)+binary.MaxVarintLen64)
	buf = binary.AppendUvarint(buf, fileNumber)
	return append(buf, userKey...)
}

// Get runs a point lookup for key against meta's table.
//
// Data tables delegate to the reader, consulting the row cache when the query
// reads the latest state. Map tables are resolved by scanning the entries
// covering key and recursing into their link targets through dependenceMap.
func (tc *TableCache) Get(opts ReadOptions, meta *FileMetaData, key InternalKey,
	gctx *GetContext, dependenceMap DependenceMap) error {
	return tc.get(opts, meta, key, gctx, dependenceMap, 0)
}

func (tc *TableCache) get(opts ReadOptions, meta *FileMetaData, key InternalKey,
	gctx *GetContext, dependenceMap DependenceMap, depth int) error {
	if depth > maxMapDepth {
		return common.NewCorruptionError("Map sst nested too deep")
	}

	// Row cache is only sound when the lookup reads the latest state and no
	// element window is active; cached rows carry no sequence numbers.
	enableRowCache := tc.opts.RowCache != nil && meta.Prop.Purpose != PurposeMap &&
		gctx.minSequenceAndType == 0 && key.SequenceNumber() == maxSequenceNumber
	var rkey []byte
	if enableRowCache {
		rkey = rowCacheKey(meta.FD.FileNumber, key.UserKey())
		if row, ok := tc.opts.RowCache.Get(rkey); ok && len(row) > 0 {
			switch KeyKind(row[0]) {
			case KeyKindSet:
				gctx.state = getStateFound
				gctx.value = append([]byte(nil), row[1:]...)
			case KeyKindDelete:
				gctx.state = getStateDeleted
			}
			return nil
		}
	}

	e, err := tc.FindTable(meta.FD, opts.NoIO)
	if err != nil {
		if opts.NoIO && common.IsIncomplete(err) {
			// couldn't rule the key out without IO; treat as may-exist
			gctx.markKeyMayExist()
			return nil
		}
		return err
	}
	defer tc.ReleaseHandle(e)
	reader := e.reader

	if meta.Prop.Purpose != PurposeMap {
		if err := reader.get(key, gctx); err != nil {
			return err
		}
		if enableRowCache && gctx.isFinished() {
			row := []byte{byte(KeyKindDelete)}
			if gctx.Found() {
				row = append([]byte{byte(KeyKindSet)}, gctx.Value()...)
			}
			tc.opts.RowCache.Insert(rkey, row)
		}
		return nil
	}

	if len(dependenceMap) == 0 {
		return common.NewCorruptionError("Composite sst depend files missing")
	}
	return tc.getFromMap(opts, reader, key, gctx, dependenceMap, depth)
}

// getFromMap range-scans the map table's entries covering key and forwards the
// lookup into each entry's link targets.
func (tc *TableCache) getFromMap(opts ReadOptions, reader *tableReader, key InternalKey,
	gctx *GetContext, dependenceMap DependenceMap, depth int) error {
	icomp := tc.icomp
	ucmp := icomp.userComparator()

	var s error
	var element mapSstElement
	reader.rangeScan(key, func(largestKey, value []byte) bool {
		if err := element.decode(largestKey, value); err != nil {
			s = err
			return false
		}
		if element.smallestKey == nil {
			s = common.NewCorruptionError("Map sst kNoSmallest unsupported")
			return false
		}
		smallest := element.smallestKey
		largest := element.largestKey

		findK := key
		includeSmallest := 0
		if element.includeSmallest {
			includeSmallest = 1
		}
		if icomp.Compare(smallest, key) >= includeSmallest {
			if ucmp.Compare(smallest.UserKey(), key.UserKey()) != 0 {
				// key is out of smallest bound
				return false
			}
			// same user key, shrink to smallest
			if element.includeSmallest {
				findK = smallest
			} else {
				seqType := smallest.Footer()
				if seqType == 0 {
					// smallest already has the lowest footer of the user key
					return false
				}
				findK = smallest.withFooter(seqType - 1)
			}
		}

		isLargestUserKey := ucmp.Compare(largest.UserKey(), key.UserKey()) == 0
		minSeqTypeBackup := gctx.minSequenceAndType
		if isLargestUserKey {
			// shrink the floor to largest, so recursion can't surface records
			// past this element's window
			seqType := largest.Footer()
			if seqType == maxInternalFooter && !element.includeLargest {
				// key is out of largest bound, go next map element
				return true
			}
			min := seqType
			if !element.includeLargest {
				min++
			}
			if min < minSeqTypeBackup {
				min = minSeqTypeBackup
			}
			gctx.minSequenceAndType = min
		}

		for _, l := range element.link {
			f, ok := dependenceMap[l.FileNumber]
			if !ok {
				s = common.NewCorruptionError("Map sst depend files missing")
				return false
			}
			s = tc.get(opts, f, findK, gctx, dependenceMap, depth+1)
			if s != nil || gctx.isFinished() {
				// error or found; restoring the floor is unnecessary
				return false
			}
		}
		gctx.minSequenceAndType = minSeqTypeBackup
		return isLargestUserKey
	})
	return s
}
