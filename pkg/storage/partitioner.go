package storage

type partitionType int

const (
	// partitionMerge unions the coverage of both inputs. Points covered by
	// both carry A's links followed by B's links.
	partitionMerge partitionType = iota

	// partitionDelete subtracts B's coverage from A. B's intervals carry no
	// links and act purely as masks.
	partitionDelete
)

// partitionRanges computes the union or difference of two sorted non-overlap
// interval vectors.
//
// a: [ -------- )      [ -------- ]
// b:       ( -------------- ]
// r: [ -- ]( -- )[ -- )[ -- ]( -- ]
//
// The sweep walks the multiset of endpoint events of both inputs in
// (key, bracket, inclusive) order and emits an output interval on every
// coverage transition. O(len(a) + len(b)).
func partitionRanges(rangesA, rangesB []rangeWithDepend, icomp *internalKeyComparator,
	ptype partitionType) []rangeWithDepend {
	if len(rangesA) == 0 || len(rangesB) == 0 {
		if ptype == partitionDelete {
			return append([]rangeWithDepend(nil), rangesA...)
		}
		return append(append([]rangeWithDepend(nil), rangesA...), rangesB...)
	}

	var output []rangeWithDepend
	var source *rangeWithDepend

	putLeft := func(key InternalKey, include bool, r *rangeWithDepend) {
		output = append(output, rangeWithDepend{})
		back := &output[len(output)-1]
		back.point[0] = key
		back.include[0] = include
		source = r
	}
	putRight := func(key InternalKey, include bool, r *rangeWithDepend) {
		back := &output[len(output)-1]
		if len(back.dependence) == 0 ||
			(icomp.Compare(key, back.point[0]) == 0 && (!back.include[0] || !include)) {
			output = output[:len(output)-1]
			return
		}
		back.point[1] = key
		back.include[1] = include
		if isEmptyMapElement(back, icomp) {
			output = output[:len(output)-1]
			return
		}
		if source == nil || r == nil || source != r {
			back.stable = false
		}
	}
	putDepend := func(a, b *rangeWithDepend) {
		back := &output[len(output)-1]
		switch ptype {
		case partitionMerge:
			if a != nil {
				back.dependence = append([]LinkTarget(nil), a.dependence...)
				if b != nil {
					back.stable = false
					back.dependence = append(back.dependence, b.dependence...)
				} else {
					back.noRecords = a.noRecords
					back.stable = a.stable
				}
			} else {
				back.noRecords = b.noRecords
				back.stable = b.stable
				back.dependence = append([]LinkTarget(nil), b.dependence...)
			}
		case partitionDelete:
			// intervals covered by b keep an empty dependence and get
			// dropped by putRight.
			if b == nil {
				back.noRecords = a.noRecords
				back.stable = a.stable
				back.dependence = append([]LinkTarget(nil), a.dependence...)
			}
		}
	}

	kase := func(a, b, c, d int) int {
		return a | b<<1 | c<<2 | d<<3
	}
	ai, bi := 0, 0 // range index
	ab, bb := 0, 0 // left bound or right bound
	for ai != len(rangesA) || bi != len(rangesB) {
		var c int
		if ai < len(rangesA) && bi < len(rangesB) {
			c = icomp.Compare(rangesA[ai].point[ab], rangesB[bi].point[bb])
			c = compInclude(c, ab, rangesA[ai].include[ab], bb, rangesB[bi].include[bb])
		} else if ai < len(rangesA) {
			c = -1
		} else {
			c = 1
		}
		ac, bc := 0, 0 // changed
		if c <= 0 {
			ac = 1
		}
		if c >= 0 {
			bc = 1
		}
		switch kase(ab, bb, ac, bc) {
		// out a , out b , enter a
		case kase(0, 0, 1, 0):
			putLeft(rangesA[ai].point[ab], rangesA[ai].include[ab], &rangesA[ai])
			putDepend(&rangesA[ai], nil)
		// in a , out b , leave a
		case kase(1, 0, 1, 0):
			putRight(rangesA[ai].point[ab], rangesA[ai].include[ab], &rangesA[ai])
		// out a , out b , enter b
		case kase(0, 0, 0, 1):
			putLeft(rangesB[bi].point[bb], rangesB[bi].include[bb], &rangesB[bi])
			putDepend(nil, &rangesB[bi])
		// out a , in b , leave b
		case kase(0, 1, 0, 1):
			putRight(rangesB[bi].point[bb], rangesB[bi].include[bb], &rangesB[bi])
		// in a , out b , begin b
		case kase(1, 0, 0, 1):
			putRight(rangesB[bi].point[bb], !rangesB[bi].include[bb], nil)
			putLeft(rangesB[bi].point[bb], rangesB[bi].include[bb], &rangesB[bi])
			putDepend(&rangesA[ai], &rangesB[bi])
		// in a , in b , leave b
		case kase(1, 1, 0, 1):
			putRight(rangesB[bi].point[bb], rangesB[bi].include[bb], &rangesB[bi])
			putLeft(rangesB[bi].point[bb], !rangesB[bi].include[bb], nil)
			putDepend(&rangesA[ai], nil)
		// out a , in b , begin a
		case kase(0, 1, 1, 0):
			putRight(rangesA[ai].point[ab], !rangesA[ai].include[ab], nil)
			putLeft(rangesA[ai].point[ab], rangesA[ai].include[ab], &rangesA[ai])
			putDepend(&rangesA[ai], &rangesB[bi])
		// in a , in b , leave a
		case kase(1, 1, 1, 0):
			putRight(rangesA[ai].point[ab], rangesA[ai].include[ab], &rangesA[ai])
			putLeft(rangesA[ai].point[ab], !rangesA[ai].include[ab], nil)
			putDepend(nil, &rangesB[bi])
		// out a , out b , enter a , enter b
		case kase(0, 0, 1, 1):
			putLeft(rangesA[ai].point[ab], rangesA[ai].include[ab], nil)
			putDepend(&rangesA[ai], &rangesB[bi])
		// in a , in b , leave a , leave b
		case kase(1, 1, 1, 1):
			putRight(rangesA[ai].point[ab], rangesA[ai].include[ab], nil)
		default:
			panic("storage::partitioner; impossible sweep state")
		}
		ai += (ab + ac) / 2
		bi += (bb + bc) / 2
		ab = (ab + ac) % 2
		bb = (bb + bc) % 2
	}
	return output
}
