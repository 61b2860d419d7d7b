package storage

// fileMetaDataBoundBuilder accumulates the key and sequence bounds of every
// file contributing to a build. The result seeds the output file's metadata.
type fileMetaDataBoundBuilder struct {
	icomp *internalKeyComparator

	smallest, largest InternalKey
	smallestSeqno     uint64
	largestSeqno      uint64
	creationTime      uint64
}

func newFileMetaDataBoundBuilder(icomp *internalKeyComparator) *fileMetaDataBoundBuilder {
	return &fileMetaDataBoundBuilder{
		icomp:         icomp,
		smallestSeqno: maxSequenceNumber,
	}
}

func (bb *fileMetaDataBoundBuilder) update(f *FileMetaData) {
	if bb.smallest == nil || bb.icomp.Compare(f.Smallest, bb.smallest) < 0 {
		bb.smallest = f.Smallest
	}
	if bb.largest == nil || bb.icomp.Compare(f.Largest, bb.largest) > 0 {
		bb.largest = f.Largest
	}
	if f.FD.SmallestSeqno < bb.smallestSeqno {
		bb.smallestSeqno = f.FD.SmallestSeqno
	}
	if f.FD.LargestSeqno > bb.largestSeqno {
		bb.largestSeqno = f.FD.LargestSeqno
	}
}

// loadRanges appends one interval per data file, or one per decoded map entry,
// for each input file in order. Returns a sorted interval vector.
//
// Data files become a single inclusive range over their own bounds with a
// single zero-size link. Map files contribute their entries verbatim, marked
// stable.
func loadRanges(ranges []rangeWithDepend, boundBuilder *fileMetaDataBoundBuilder,
	iterCache *iteratorCache, files []*FileMetaData) ([]rangeWithDepend, error) {
	for _, f := range files {
		if f.Prop.Purpose == PurposeMap {
			iter, _, err := iterCache.getIterator(f)
			if err != nil {
				return nil, err
			}
			var element mapSstElement
			for iter.SeekToFirst(); iter.Valid(); iter.Next() {
				if err := element.decode(iter.Key(), iter.Value()); err != nil {
					return nil, err
				}
				// the backing buffers outlive the build through the iterator
				// cache, so keys are retained by reference
				ranges = append(ranges, newRangeFromElement(&element))
			}
			if err := iter.Status(); err != nil {
				return nil, err
			}
		} else {
			if _, _, err := iterCache.getIterator(f); err != nil {
				return nil, err
			}
			ranges = append(ranges, newRangeFromFile(f))
		}
		if boundBuilder != nil {
			boundBuilder.update(f)
			if ct := fileCreationTime(iterCache, f); ct > boundBuilder.creationTime {
				boundBuilder.creationTime = ct
			}
		}
	}
	return ranges, nil
}

// fileCreationTime reads the creation time property from the file's open reader.
func fileCreationTime(iterCache *iteratorCache, f *FileMetaData) uint64 {
	_, reader, err := iterCache.getIterator(f)
	if err != nil || reader == nil {
		return 0
	}
	return reader.properties().CreationTime
}
