package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testIcomp = newInternalKeyComparator(DefaultComparator)

// mkRange builds an interval for partitioner tests.
func mkRange(start InternalKey, incStart bool, end InternalKey, incEnd bool,
	stable bool, deps ...uint64) rangeWithDepend {
	r := rangeWithDepend{
		point:   [2]InternalKey{start, end},
		include: [2]bool{incStart, incEnd},
		stable:  stable,
	}
	for _, d := range deps {
		r.dependence = append(r.dependence, LinkTarget{FileNumber: d})
	}
	return r
}

// rangeContains checks point membership under the inclusive-aware compare.
func rangeContains(r *rangeWithDepend, key InternalKey) bool {
	if c := testIcomp.Compare(key, r.point[0]); c < 0 || (c == 0 && !r.include[0]) {
		return false
	}
	if c := testIcomp.Compare(key, r.point[1]); c > 0 || (c == 0 && !r.include[1]) {
		return false
	}
	return true
}

func vectorCovers(ranges []rangeWithDepend, key InternalKey) bool {
	for i := range ranges {
		if rangeContains(&ranges[i], key) {
			return true
		}
	}
	return false
}

func depFileNumbers(r *rangeWithDepend) []uint64 {
	var out []uint64
	for _, l := range r.dependence {
		out = append(out, l.FileNumber)
	}
	return out
}

// TestPartitionMergeTwoFileOverlap covers the canonical two overlapping data
// files: the merge splits them into three intervals with the shared middle
// carrying both links.
func TestPartitionMergeTwoFileOverlap(t *testing.T) {
	a := []rangeWithDepend{mkRange(ik("a", 10), true, ik("m", 5), true, false, 1)}
	b := []rangeWithDepend{mkRange(ik("g", 8), true, ik("z", 3), true, false, 2)}

	out := partitionRanges(a, b, testIcomp, partitionMerge)
	assert.Equal(t, 3, len(out), "Merge of two overlapping intervals should yield three intervals")

	assert.Equal(t, ik("a", 10), out[0].point[0])
	assert.Equal(t, ik("g", 8), out[0].point[1])
	assert.True(t, out[0].include[0])
	assert.False(t, out[0].include[1], "First interval should end exclusive where the overlap begins")
	assert.Equal(t, []uint64{1}, depFileNumbers(&out[0]))

	assert.Equal(t, ik("g", 8), out[1].point[0])
	assert.Equal(t, ik("m", 5), out[1].point[1])
	assert.True(t, out[1].include[0])
	assert.True(t, out[1].include[1])
	assert.Equal(t, []uint64{1, 2}, depFileNumbers(&out[1]), "Overlap should carry A's links then B's links")

	assert.Equal(t, ik("m", 5), out[2].point[0])
	assert.Equal(t, ik("z", 3), out[2].point[1])
	assert.False(t, out[2].include[0], "Last interval should begin exclusive where the overlap ends")
	assert.True(t, out[2].include[1])
	assert.Equal(t, []uint64{2}, depFileNumbers(&out[2]))

	for i := range out {
		assert.False(t, out[i].stable, "Merged intervals must not be stable")
	}
	assert.True(t, rangesSorted(out, testIcomp), "Output must stay sorted by upper endpoint")
}

// TestPartitionMergeTouchingNotFused checks that adjacent intervals sharing an
// endpoint with complementary inclusivity stay separate.
func TestPartitionMergeTouchingNotFused(t *testing.T) {
	a := []rangeWithDepend{mkRange(ik("a", 7), true, ik("m", 7), true, false, 1)}
	b := []rangeWithDepend{mkRange(ik("m", 7), false, ik("z", 7), true, false, 2)}

	out := partitionRanges(a, b, testIcomp, partitionMerge)
	assert.Equal(t, 2, len(out), "Touching intervals with complementary inclusivity must not be fused")

	assert.Equal(t, ik("m", 7), out[0].point[1])
	assert.True(t, out[0].include[1])
	assert.Equal(t, []uint64{1}, depFileNumbers(&out[0]))

	assert.Equal(t, ik("m", 7), out[1].point[0])
	assert.False(t, out[1].include[0])
	assert.Equal(t, []uint64{2}, depFileNumbers(&out[1]))
}

// TestPartitionDeleteExactCover deletes an interval with a mask of exactly its
// own bounds.
func TestPartitionDeleteExactCover(t *testing.T) {
	a := []rangeWithDepend{mkRange(ik("a", 9), true, ik("z", 2), true, true, 1)}
	b := []rangeWithDepend{mkRange(ik("a", 9), true, ik("z", 2), true, false)}

	out := partitionRanges(a, b, testIcomp, partitionDelete)
	assert.Equal(t, 0, len(out), "Exact delete should leave nothing")
}

// TestPartitionDeletePunchesHole deletes the middle of an interval, leaving
// the two flanks with A's links and no stability.
func TestPartitionDeletePunchesHole(t *testing.T) {
	a := []rangeWithDepend{mkRange(ik("a", 9), true, ik("z", 2), true, true, 1)}
	b := []rangeWithDepend{mkRange(ik("g", 5), true, ik("p", 5), true, false)}

	out := partitionRanges(a, b, testIcomp, partitionDelete)
	assert.Equal(t, 2, len(out), "Deleting the middle should leave two flanks")

	assert.Equal(t, ik("a", 9), out[0].point[0])
	assert.Equal(t, ik("g", 5), out[0].point[1])
	assert.False(t, out[0].include[1], "Left flank must end exclusive at the mask start")
	assert.Equal(t, []uint64{1}, depFileNumbers(&out[0]))
	assert.False(t, out[0].stable, "A split interval can't remain stable")

	assert.Equal(t, ik("p", 5), out[1].point[0])
	assert.False(t, out[1].include[0], "Right flank must begin exclusive at the mask end")
	assert.Equal(t, ik("z", 2), out[1].point[1])
	assert.Equal(t, []uint64{1}, depFileNumbers(&out[1]))
}

// TestPartitionMergeKeepsStability merges two disjoint vectors; intervals that
// never overlap the other side keep their stable flag.
func TestPartitionMergeKeepsStability(t *testing.T) {
	a := []rangeWithDepend{mkRange(ik("a", 9), true, ik("c", 5), true, true, 1)}
	b := []rangeWithDepend{mkRange(ik("p", 9), true, ik("r", 5), true, true, 2)}

	out := partitionRanges(a, b, testIcomp, partitionMerge)
	assert.Equal(t, 2, len(out))
	assert.True(t, out[0].stable, "Non-overlapping interval from A should stay stable")
	assert.True(t, out[1].stable, "Non-overlapping interval from B should stay stable")
}

// TestPartitionCoverage samples points against the pointwise union/difference
// definitions of MERGE and DELETE.
func TestPartitionCoverage(t *testing.T) {
	a := []rangeWithDepend{
		mkRange(ik("b", 9), true, ik("f", 5), false, false, 1),
		mkRange(ik("h", 9), false, ik("k", 5), true, false, 1),
		mkRange(ik("p", 9), true, ik("t", 5), true, false, 1),
	}
	b := []rangeWithDepend{
		mkRange(ik("d", 9), true, ik("i", 5), true, false, 2),
		mkRange(ik("s", 9), false, ik("x", 5), true, false, 2),
	}

	var samples []InternalKey
	for _, v := range [][]rangeWithDepend{a, b} {
		for i := range v {
			samples = append(samples, v[i].point[0], v[i].point[1])
		}
	}
	for _, u := range []string{"a", "c", "e", "g", "j", "l", "q", "u", "y"} {
		samples = append(samples, ik(u, 7))
	}

	merged := partitionRanges(a, b, testIcomp, partitionMerge)
	assert.True(t, rangesSorted(merged, testIcomp))
	for _, s := range samples {
		expected := vectorCovers(a, s) || vectorCovers(b, s)
		assert.Equal(t, expected, vectorCovers(merged, s),
			"Merge coverage mismatch at %q", string(s.UserKey()))
	}

	deleted := partitionRanges(a, b, testIcomp, partitionDelete)
	assert.True(t, rangesSorted(deleted, testIcomp))
	for _, s := range samples {
		expected := vectorCovers(a, s) && !vectorCovers(b, s)
		assert.Equal(t, expected, vectorCovers(deleted, s),
			"Delete coverage mismatch at %q", string(s.UserKey()))
	}
}

// TestCompIncludeTruthTable pins the tie-break rules at equal keys.
func TestCompIncludeTruthTable(t *testing.T) {
	// a ")" right-exclusive comes before b "[" left-inclusive
	assert.Equal(t, -1, compInclude(0, 1, false, 0, true))
	// a "[" left-inclusive comes after b ")" right-exclusive
	assert.Equal(t, 1, compInclude(0, 0, true, 1, false))
	// a "]" right-inclusive against b "(" left-exclusive: a is processed first
	assert.Equal(t, -1, compInclude(0, 1, true, 0, false))
	assert.Equal(t, 1, compInclude(0, 0, false, 1, true))
	// equal bracket shapes tie
	assert.Equal(t, 0, compInclude(0, 0, true, 0, true))
	assert.Equal(t, 0, compInclude(0, 1, true, 1, true))
	assert.Equal(t, 0, compInclude(0, 0, false, 0, false))
	assert.Equal(t, 0, compInclude(0, 1, false, 1, false))
	// a nonzero key comparison wins outright
	assert.Equal(t, -1, compInclude(-1, 1, true, 0, false))
	assert.Equal(t, 1, compInclude(1, 0, true, 1, false))
}

// TestMergeDependDeduplicates checks link list merging keeps first occurrence
// order without duplicates.
func TestMergeDependDeduplicates(t *testing.T) {
	e := mapSstElement{link: []LinkTarget{{FileNumber: 1}, {FileNumber: 2}}}
	mergeDepend(&e, []LinkTarget{{FileNumber: 2}, {FileNumber: 3}})
	assert.Equal(t, []LinkTarget{{FileNumber: 1}, {FileNumber: 2}, {FileNumber: 3}},
		e.link, "Merged link list must be deduplicated preserving order")

	// a duplicate anchors where the links in front of it are spliced in
	e = mapSstElement{link: []LinkTarget{{FileNumber: 5}}}
	mergeDepend(&e, []LinkTarget{{FileNumber: 6}, {FileNumber: 5}, {FileNumber: 7}})
	fns := depFileNumbers(&rangeWithDepend{dependence: e.link})
	assert.Equal(t, []uint64{6, 5, 7}, fns)
}
