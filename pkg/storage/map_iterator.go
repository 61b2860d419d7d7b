package storage

import (
	"sort"
)

// mapIterCreateFunc builds a sub iterator for one file during map expansion.
type mapIterCreateFunc func(f *FileMetaData, depMap DependenceMap) (Iterator, error)

// mapSstIterator expands a map table's entries into the records of their link
// targets.
//
// The outer level walks map entries; for each one the link targets are opened
// on demand and concatenated in list order, restricted to the entry's range
// with its inclusivity. Link iterators are created through the table cache, so
// the expansion recurses for nested maps.
type mapSstIterator struct {
	entryIter Iterator
	depMap    DependenceMap
	icomp     *internalKeyComparator
	create    mapIterCreateFunc

	element   mapSstElement
	linkIndex int
	inner     Iterator

	valid bool
	err   error
}

func newMapSstIterator(entryIter Iterator, depMap DependenceMap,
	icomp *internalKeyComparator, create mapIterCreateFunc) Iterator {
	return &mapSstIterator{
		entryIter: entryIter,
		depMap:    depMap,
		icomp:     icomp,
		create:    create,
	}
}

func (mi *mapSstIterator) fail(err error) {
	mi.err = err
	mi.valid = false
	mi.closeInner()
}

func (mi *mapSstIterator) closeInner() {
	if mi.inner != nil {
		mi.inner.Close()
		mi.inner = nil
	}
}

// decodeCurrent decodes the entry under the outer iterator.
func (mi *mapSstIterator) decodeCurrent() bool {
	if err := mi.element.decode(mi.entryIter.Key(), mi.entryIter.Value()); err != nil {
		mi.fail(err)
		return false
	}
	if mi.element.smallestKey == nil {
		mi.fail(newMissingDependenceError())
		return false
	}
	return true
}

// inWindow checks a record key against the current element's range.
func (mi *mapSstIterator) inWindow(key []byte) bool {
	if c := mi.icomp.Compare(key, mi.element.smallestKey); c < 0 ||
		(c == 0 && !mi.element.includeSmallest) {
		return false
	}
	if c := mi.icomp.Compare(key, mi.element.largestKey); c > 0 ||
		(c == 0 && !mi.element.includeLargest) {
		return false
	}
	return true
}

// openLink opens link li of the current element.
func (mi *mapSstIterator) openLink(li int) bool {
	mi.closeInner()
	f, ok := mi.depMap[mi.element.link[li].FileNumber]
	if !ok {
		mi.fail(newMissingDependenceError())
		return false
	}
	inner, err := mi.create(f, mi.depMap)
	if err != nil {
		mi.fail(err)
		return false
	}
	mi.inner = inner
	mi.linkIndex = li
	return true
}

// enterForward positions at the first in-window record of the element at or
// after bound (nil means the window start), trying links in list order.
func (mi *mapSstIterator) enterForward(bound []byte) bool {
	seekKey := mi.element.smallestKey
	if bound != nil && mi.icomp.Compare(bound, seekKey) > 0 {
		seekKey = bound
	}
	for li := 0; li < len(mi.element.link); li++ {
		if !mi.openLink(li) {
			return false
		}
		mi.inner.Seek(seekKey)
		if !mi.element.includeSmallest && mi.inner.Valid() &&
			mi.icomp.Compare(mi.inner.Key(), mi.element.smallestKey) == 0 {
			mi.inner.Next()
		}
		if mi.inner.Valid() && mi.inWindow(mi.inner.Key()) {
			mi.valid = true
			return true
		}
		if err := mi.inner.Status(); err != nil {
			mi.fail(err)
			return false
		}
	}
	mi.closeInner()
	return false
}

// enterBackward positions at the last in-window record of the element at or
// before bound (nil means the window end), trying links in reverse list order.
func (mi *mapSstIterator) enterBackward(bound []byte) bool {
	seekKey := mi.element.largestKey
	if bound != nil && mi.icomp.Compare(bound, seekKey) < 0 {
		seekKey = bound
	}
	for li := len(mi.element.link) - 1; li >= 0; li-- {
		if !mi.openLink(li) {
			return false
		}
		mi.inner.SeekForPrev(seekKey)
		if !mi.element.includeLargest && mi.inner.Valid() &&
			mi.icomp.Compare(mi.inner.Key(), mi.element.largestKey) == 0 {
			mi.inner.Prev()
		}
		if mi.inner.Valid() && mi.inWindow(mi.inner.Key()) {
			mi.valid = true
			return true
		}
		if err := mi.inner.Status(); err != nil {
			mi.fail(err)
			return false
		}
	}
	mi.closeInner()
	return false
}

// nextElementForward walks outer entries until one yields a record.
func (mi *mapSstIterator) nextElementForward(bound []byte) {
	for mi.entryIter.Valid() {
		if !mi.decodeCurrent() {
			return
		}
		if mi.enterForward(bound) {
			return
		}
		if mi.err != nil {
			return
		}
		bound = nil
		mi.entryIter.Next()
	}
	mi.valid = false
	if err := mi.entryIter.Status(); err != nil {
		mi.fail(err)
	}
}

// prevElementBackward walks outer entries backwards until one yields a record.
func (mi *mapSstIterator) prevElementBackward(bound []byte) {
	for mi.entryIter.Valid() {
		if !mi.decodeCurrent() {
			return
		}
		if mi.enterBackward(bound) {
			return
		}
		if mi.err != nil {
			return
		}
		bound = nil
		mi.entryIter.Prev()
	}
	mi.valid = false
	if err := mi.entryIter.Status(); err != nil {
		mi.fail(err)
	}
}

func (mi *mapSstIterator) Valid() bool { return mi.valid }

func (mi *mapSstIterator) SeekToFirst() {
	mi.valid = false
	mi.entryIter.SeekToFirst()
	mi.nextElementForward(nil)
}

func (mi *mapSstIterator) SeekToLast() {
	mi.valid = false
	mi.entryIter.SeekToLast()
	mi.prevElementBackward(nil)
}

func (mi *mapSstIterator) Seek(target []byte) {
	mi.valid = false
	// entries are keyed by their largest key, so the first entry at or past
	// target is the one whose range may cover it
	mi.entryIter.Seek(target)
	mi.nextElementForward(target)
}

func (mi *mapSstIterator) SeekForPrev(target []byte) {
	mi.valid = false
	mi.entryIter.Seek(target)
	if !mi.entryIter.Valid() {
		mi.entryIter.SeekToLast()
	}
	mi.prevElementBackward(target)
}

func (mi *mapSstIterator) Next() {
	if !mi.valid {
		panic("Next on invalid map iterator")
	}
	mi.inner.Next()
	if mi.inner.Valid() && mi.inWindow(mi.inner.Key()) {
		return
	}
	// remaining links of the current element, then later elements
	for li := mi.linkIndex + 1; li < len(mi.element.link); li++ {
		if !mi.openLink(li) {
			return
		}
		mi.inner.Seek(mi.element.smallestKey)
		if !mi.element.includeSmallest && mi.inner.Valid() &&
			mi.icomp.Compare(mi.inner.Key(), mi.element.smallestKey) == 0 {
			mi.inner.Next()
		}
		if mi.inner.Valid() && mi.inWindow(mi.inner.Key()) {
			return
		}
	}
	mi.valid = false
	mi.entryIter.Next()
	mi.nextElementForward(nil)
}

func (mi *mapSstIterator) Prev() {
	if !mi.valid {
		panic("Prev on invalid map iterator")
	}
	mi.inner.Prev()
	if mi.inner.Valid() && mi.inWindow(mi.inner.Key()) {
		return
	}
	for li := mi.linkIndex - 1; li >= 0; li-- {
		if !mi.openLink(li) {
			return
		}
		mi.inner.SeekForPrev(mi.element.largestKey)
		if !mi.element.includeLargest && mi.inner.Valid() &&
			mi.icomp.Compare(mi.inner.Key(), mi.element.largestKey) == 0 {
			mi.inner.Prev()
		}
		if mi.inner.Valid() && mi.inWindow(mi.inner.Key()) {
			return
		}
	}
	mi.valid = false
	mi.entryIter.Prev()
	mi.prevElementBackward(nil)
}

func (mi *mapSstIterator) Key() []byte {
	return mi.inner.Key()
}

func (mi *mapSstIterator) Value() []byte {
	return mi.inner.Value()
}

func (mi *mapSstIterator) Status() error {
	if mi.err != nil {
		return mi.err
	}
	return mi.entryIter.Status()
}

func (mi *mapSstIterator) Close() error {
	mi.closeInner()
	return mi.entryIter.Close()
}

// stitchedMapElementIterator concatenates a key-ordered sequence of tables
// into one stream of map entries.
//
// Data files contribute one synthetic entry covering their own bounds with a
// single link. Map files contribute their entries verbatim through their own
// iterator.
type stitchedMapElementIterator struct {
	metas  []*FileMetaData
	icomp  *internalKeyComparator
	create func(f *FileMetaData) (Iterator, error)

	where int
	iter  Iterator

	element    mapSstElement
	buffer     []byte
	keySlice   []byte
	valueSlice []byte

	err error
}

// NewStitchedIterator builds an iterator over the map entries of metas, which
// must be sorted by largest key.
//
// create opens a raw entry iterator for a map file. Data files need no IO.
func NewStitchedIterator(metas []*FileMetaData, opts ReadOptions,
	tableCache *TableCache) Iterator {
	create := func(f *FileMetaData) (Iterator, error) {
		iter, _, err := tableCache.NewIterator(opts, f, nil)
		return iter, err
	}
	if len(metas) == 0 {
		return newErrorIterator(nil)
	}
	if len(metas) == 1 && metas[0].Prop.Purpose == PurposeMap {
		iter, err := create(metas[0])
		if err != nil {
			return newErrorIterator(err)
		}
		return iter
	}
	return &stitchedMapElementIterator{
		metas:  metas,
		icomp:  tableCache.icomp,
		create: create,
		where:  len(metas),
	}
}

func (si *stitchedMapElementIterator) Valid() bool {
	return si.err == nil && si.where < len(si.metas)
}

func (si *stitchedMapElementIterator) initMapIterator() bool {
	si.closeIter()
	iter, err := si.create(si.metas[si.where])
	if err != nil {
		si.err = err
		si.where = len(si.metas)
		return false
	}
	si.iter = iter
	return true
}

func (si *stitchedMapElementIterator) closeIter() {
	if si.iter != nil {
		si.iter.Close()
		si.iter = nil
	}
}

// update refreshes the exposed key/value from the delegated iterator or the
// synthesized element of a data file.
func (si *stitchedMapElementIterator) update() {
	if si.iter != nil {
		si.keySlice = si.iter.Key()
		si.valueSlice = si.iter.Value()
		return
	}
	f := si.metas[si.where]
	si.element.smallestKey = f.Smallest
	si.element.largestKey = f.Largest
	si.element.includeSmallest = true
	si.element.includeLargest = true
	si.element.noRecords = false
	si.element.link = append(si.element.link[:0],
		LinkTarget{FileNumber: f.FD.FileNumber, Size: f.FD.FileSize})
	si.buffer = si.element.encodeValue(si.buffer[:0])
	si.keySlice = si.element.key()
	si.valueSlice = si.buffer
}

func (si *stitchedMapElementIterator) Seek(target []byte) {
	si.where = sort.Search(len(si.metas), func(i int) bool {
		return si.icomp.Compare(si.metas[i].Largest, target) >= 0
	})
	if si.where == len(si.metas) {
		si.closeIter()
		return
	}
	if si.metas[si.where].Prop.Purpose == PurposeMap {
		if !si.initMapIterator() {
			return
		}
		si.iter.Seek(target)
		if !si.iter.Valid() {
			si.closeIter()
			si.where++
			if si.where == len(si.metas) {
				return
			}
			if si.metas[si.where].Prop.Purpose == PurposeMap {
				if !si.initMapIterator() {
					return
				}
				si.iter.SeekToFirst()
			}
		}
	} else {
		si.closeIter()
	}
	si.update()
}

func (si *stitchedMapElementIterator) SeekForPrev(target []byte) {
	si.where = sort.Search(len(si.metas), func(i int) bool {
		return si.icomp.Compare(si.metas[i].Largest, target) > 0
	})
	if si.where == 0 {
		si.where = len(si.metas)
		si.closeIter()
		return
	}
	si.where--
	if si.metas[si.where].Prop.Purpose == PurposeMap {
		if !si.initMapIterator() {
			return
		}
		si.iter.SeekForPrev(target)
		if !si.iter.Valid() {
			si.closeIter()
			if si.where == 0 {
				si.where = len(si.metas)
				return
			}
			si.where--
			if si.metas[si.where].Prop.Purpose == PurposeMap {
				if !si.initMapIterator() {
					return
				}
				si.iter.SeekToLast()
			}
		}
	} else {
		si.closeIter()
	}
	si.update()
}

func (si *stitchedMapElementIterator) SeekToFirst() {
	si.where = 0
	if si.metas[si.where].Prop.Purpose == PurposeMap {
		if !si.initMapIterator() {
			return
		}
		si.iter.SeekToFirst()
	} else {
		si.closeIter()
	}
	si.update()
}

func (si *stitchedMapElementIterator) SeekToLast() {
	si.where = len(si.metas) - 1
	if si.metas[si.where].Prop.Purpose == PurposeMap {
		if !si.initMapIterator() {
			return
		}
		si.iter.SeekToLast()
	} else {
		si.closeIter()
	}
	si.update()
}

func (si *stitchedMapElementIterator) Next() {
	if si.iter != nil {
		si.iter.Next()
		if si.iter.Valid() {
			si.update()
			return
		}
	}
	si.where++
	if si.where >= len(si.metas) {
		si.closeIter()
		return
	}
	if si.metas[si.where].Prop.Purpose == PurposeMap {
		if !si.initMapIterator() {
			return
		}
		si.iter.SeekToFirst()
	} else {
		si.closeIter()
	}
	si.update()
}

func (si *stitchedMapElementIterator) Prev() {
	if si.iter != nil {
		si.iter.Prev()
		if si.iter.Valid() {
			si.update()
			return
		}
	}
	if si.where == 0 {
		si.where = len(si.metas)
		si.closeIter()
		return
	}
	si.where--
	if si.metas[si.where].Prop.Purpose == PurposeMap {
		if !si.initMapIterator() {
			return
		}
		si.iter.SeekToLast()
	} else {
		si.closeIter()
	}
	si.update()
}

func (si *stitchedMapElementIterator) Key() []byte {
	return si.keySlice
}

func (si *stitchedMapElementIterator) Value() []byte {
	return si.valueSlice
}

func (si *stitchedMapElementIterator) Status() error {
	if si.err != nil {
		return si.err
	}
	if si.iter != nil {
		return si.iter.Status()
	}
	return nil
}

func (si *stitchedMapElementIterator) Close() error {
	si.closeIter()
	si.where = len(si.metas)
	return nil
}
