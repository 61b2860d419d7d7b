package storage

// mapSstElementIterator walks a finalized interval vector and produces the
// encoded entries of the new map table.
//
// Stable intervals are emitted untouched. Unstable ones are tightened: every
// link target is probed for actual data presence inside the interval and its
// size recomputed from the reader's approximate offsets. Along the way the
// iterator gathers the union of referenced file numbers and the max link
// fan-out, which become the output table's properties.
type mapSstElementIterator struct {
	ranges    []rangeWithDepend
	iterCache *iteratorCache
	icomp     *internalKeyComparator

	where   int
	element mapSstElement
	buffer  []byte

	dependenceBuild map[uint64]struct{}
	sstReadAmp      int

	err error
}

func newMapSstElementIterator(ranges []rangeWithDepend, iterCache *iteratorCache,
	icomp *internalKeyComparator) *mapSstElementIterator {
	return &mapSstElementIterator{
		ranges:          ranges,
		iterCache:       iterCache,
		icomp:           icomp,
		dependenceBuild: make(map[uint64]struct{}),
	}
}

func (mi *mapSstElementIterator) Valid() bool { return len(mi.buffer) != 0 }

func (mi *mapSstElementIterator) SeekToFirst() {
	mi.where = 0
	mi.prepareNext()
}

func (mi *mapSstElementIterator) Next() { mi.prepareNext() }

func (mi *mapSstElementIterator) Key() []byte { return mi.element.key() }

func (mi *mapSstElementIterator) Value() []byte { return mi.buffer }

func (mi *mapSstElementIterator) Status() error { return mi.err }

// getDependence returns the set of file numbers referenced by any emitted element.
func (mi *mapSstElementIterator) getDependence() map[uint64]struct{} {
	return mi.dependenceBuild
}

// getReadAmp returns the max link fan-out seen, an upper bound on the number
// of data tables a point read may consult.
func (mi *mapSstElementIterator) getReadAmp() int { return mi.sstReadAmp }

// mergeDepend merges d's links into e, dropping duplicate file numbers. A link
// of d that e lacks is inserted right before the next link of d that e already
// holds, or after e's links when no such link follows it in d.
func mergeDepend(e *mapSstElement, d []LinkTarget) {
	insertPos := len(e.link)
	for ri := len(d) - 1; ri >= 0; ri-- {
		newPos := 0
		for ; newPos < insertPos; newPos++ {
			if e.link[newPos].FileNumber == d[ri].FileNumber {
				break
			}
		}
		if newPos == insertPos {
			e.link = append(e.link, LinkTarget{})
			copy(e.link[newPos+1:], e.link[newPos:])
			e.link[newPos] = d[ri]
		} else {
			insertPos = newPos
		}
	}
}

func (mi *mapSstElementIterator) prepareNext() {
	if mi.where >= len(mi.ranges) {
		mi.buffer = mi.buffer[:0]
		return
	}
	cur := &mi.ranges[mi.where]
	start := cur.point[0]
	end := cur.point[1]
	includeStart := cur.include[0]
	includeEnd := cur.include[1]
	noRecords := cur.noRecords
	stable := cur.stable
	mi.element.link = append(mi.element.link[:0], cur.dependence...)

	mi.where++
	// fuse a touching successor that begins exactly where this interval begins:
	// an immediate right/left pair at the same key expresses "leave A, enter B"
	if mi.where < len(mi.ranges) &&
		mi.icomp.Compare(start, mi.ranges[mi.where].point[0]) == 0 {
		next := &mi.ranges[mi.where]
		end = next.point[1]
		includeEnd = next.include[1]
		mergeDepend(&mi.element, next.dependence)
		stable = false
		mi.where++
	}
	if mi.where < len(mi.ranges) &&
		mi.icomp.Compare(end, mi.ranges[mi.where].point[1]) == 0 {
		next := &mi.ranges[mi.where]
		includeEnd = true
		mergeDepend(&mi.element, next.dependence)
		stable = false
		mi.where++
	}

	mi.element.smallestKey = start
	mi.element.largestKey = end
	mi.element.includeSmallest = includeStart
	mi.element.includeLargest = includeEnd
	mi.element.noRecords = noRecords

	if stable {
		for _, l := range mi.element.link {
			mi.dependenceBuild[l.FileNumber] = struct{}{}
		}
	} else {
		mi.element.noRecords = true
		for li := range mi.element.link {
			link := &mi.element.link[li]
			mi.dependenceBuild[link.FileNumber] = struct{}{}
			iter, reader, err := mi.iterCache.getIteratorByFileNumber(link.FileNumber)
			if err != nil {
				mi.buffer = mi.buffer[:0]
				mi.err = err
				return
			}
			iter.Seek(start)
			if !iter.Valid() {
				link.Size = 0
				continue
			}
			if !includeStart && mi.icomp.Compare(iter.Key(), start) == 0 {
				iter.Next()
				if !iter.Valid() {
					link.Size = 0
					continue
				}
			}
			tempStart := InternalKey(iter.Key()).Clone()
			iter.SeekForPrev(end)
			if !iter.Valid() {
				link.Size = 0
				continue
			}
			if !includeEnd && mi.icomp.Compare(iter.Key(), end) == 0 {
				iter.Prev()
				if !iter.Valid() {
					link.Size = 0
					continue
				}
			}
			tempEnd := InternalKey(iter.Key()).Clone()
			if mi.icomp.Compare(tempStart, tempEnd) <= 0 {
				startOffset := reader.approximateOffsetOf(tempStart)
				endOffset := reader.approximateOffsetOf(tempEnd)
				link.Size = endOffset - startOffset
				mi.element.noRecords = false
			} else {
				link.Size = 0
			}
		}
	}
	if len(mi.element.link) > mi.sstReadAmp {
		mi.sstReadAmp = len(mi.element.link)
	}
	mi.buffer = mi.element.encodeValue(mi.buffer[:0])
}
