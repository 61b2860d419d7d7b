package storage

// rangeWithDepend is the interval value the partitioner manipulates.
//
// point[0] <= point[1]. include tracks per endpoint whether the bound itself
// belongs to the interval. dependence lists the files contributing records
// inside it, in first-occurrence order.
type rangeWithDepend struct {
	point   [2]InternalKey
	include [2]bool

	// noRecords is true iff no linked file contributes a record in the interval.
	noRecords bool

	// stable is true iff the interval was decoded from an input map entry and
	// has not been split or merged with another source since.
	stable bool

	dependence []LinkTarget
}

// newRangeFromFile covers a data file's whole key span with a single link.
func newRangeFromFile(f *FileMetaData) rangeWithDepend {
	return rangeWithDepend{
		point:      [2]InternalKey{f.Smallest, f.Largest},
		include:    [2]bool{true, true},
		dependence: []LinkTarget{{FileNumber: f.FD.FileNumber, Size: 0}},
	}
}

// newRangeFromElement lifts a decoded map entry into an interval. The element's
// keys are retained by reference; the caller must pass stable storage.
func newRangeFromElement(e *mapSstElement) rangeWithDepend {
	return rangeWithDepend{
		point:      [2]InternalKey{e.smallestKey, e.largestKey},
		include:    [2]bool{e.includeSmallest, e.includeLargest},
		noRecords:  e.noRecords,
		stable:     true,
		dependence: append([]LinkTarget(nil), e.link...),
	}
}

// newRangeFromKeyRange turns a deletion mask into an interval with no
// dependence.
func newRangeFromKeyRange(r KeyRange) rangeWithDepend {
	return rangeWithDepend{
		point:   [2]InternalKey{r.Start, r.Limit},
		include: [2]bool{r.IncludeStart, r.IncludeLimit},
	}
}

// isEmptyMapElement reports whether the interval is a degenerate single-link
// element pinned at a user key's max-sequence sentinel. Such elements carry no
// information and are dropped.
func isEmptyMapElement(r *rangeWithDepend, icomp *internalKeyComparator) bool {
	if len(r.dependence) != 1 {
		return false
	}
	if icomp.userComparator().Compare(r.point[0].UserKey(), r.point[1].UserKey()) != 0 {
		return false
	}
	return r.point[1].SequenceNumber() == maxSequenceNumber
}

// compInclude breaks ties between two interval endpoints at the same key.
//
// ab/bb say which bound each endpoint is (0 left, 1 right), ai/bi whether it is
// inclusive. At equal keys an exclusive right bound `)` sorts before an
// inclusive left bound `[`, and an inclusive right bound `]` before an
// exclusive left bound `(`. Equal bracket shapes tie.
func compInclude(c int, ab int, ai bool, bb int, bi bool) int {
	kase := func(a, b, c, d bool) int {
		r := 0
		if a {
			r |= 1
		}
		if b {
			r |= 2
		}
		if c {
			r |= 4
		}
		if d {
			r |= 8
		}
		return r
	}
	if c != 0 {
		return c
	}
	switch kase(ab != 0, ai, bb != 0, bi) {
	// a: [   )   ]   )   )   [
	// b: (   [   (   ]   (   ]
	case kase(false, true, false, false),
		kase(true, false, false, true),
		kase(true, true, false, false),
		kase(true, false, true, true),
		kase(true, false, false, false),
		kase(false, true, true, true):
		return -1
	// a: (   [   (   ]   (   ]
	// b: [   )   ]   )   )   [
	case kase(false, false, false, true),
		kase(false, true, true, false),
		kase(false, false, true, true),
		kase(true, true, true, false),
		kase(false, false, true, false),
		kase(true, true, false, true):
		return 1
	// a: [   ]   (   )
	// b: [   ]   (   )
	default:
		return 0
	}
}

// rangesSorted checks that intervals are ordered by upper endpoint. Used by
// tests.
func rangesSorted(ranges []rangeWithDepend, icomp *internalKeyComparator) bool {
	for i := 1; i < len(ranges); i++ {
		if icomp.Compare(ranges[i-1].point[1], ranges[i].point[1]) >= 0 {
			return false
		}
	}
	return true
}
