package storage

import (
	"fmt"
	"sort"

	"github.com/dr0pdb/icefloedb/pkg/common"
	log "github.com/sirupsen/logrus"
)

// isPrefaceRange reports whether the interval exactly restates a data file's
// own bounds with the same inclusivity. Such an entry adds no information; a
// vector of preface ranges needs no map table at all.
func isPrefaceRange(r *rangeWithDepend, f *FileMetaData, icomp *internalKeyComparator) bool {
	uc := icomp.userComparator()
	if f.Prop.Purpose != PurposeData || !r.include[0] {
		return false
	}
	if icomp.Compare(r.point[0], f.Smallest) != 0 {
		return false
	}
	if uc.Compare(r.point[1].UserKey(), f.Largest.UserKey()) != 0 {
		return false
	}
	if f.Largest.SequenceNumber() == maxSequenceNumber {
		return r.point[1].SequenceNumber() == maxSequenceNumber
	}
	return r.include[1] && r.point[1].Footer() == f.Largest.Footer()
}

// MapBuilder runs one virtual compaction: it computes the interval algebra
// over the inputs and either writes a new map table or proves none is needed.
//
// Single threaded per build job.
type MapBuilder struct {
	jobID int

	opts       *Options
	versions   *VersionSet
	tableCache *TableCache
}

// NewMapBuilder creates a builder for one build job.
func NewMapBuilder(jobID int, opts *Options, versions *VersionSet, tableCache *TableCache) *MapBuilder {
	opts.applyDefaults()
	return &MapBuilder{
		jobID:      jobID,
		opts:       opts,
		versions:   versions,
		tableCache: tableCache,
	}
}

// Build computes the merge of inputs, subtracts deletedRanges, merges
// addedFiles, and emits the edit that replaces the inputs at outputLevel.
//
// On success the returned meta describes the new map table, or is nil when a
// short circuit proved no new file was needed. On error no edits are recorded
// and any partially written file is removed.
func (b *MapBuilder) Build(inputs []CompactionInputFiles, deletedRanges []KeyRange,
	addedFiles []*FileMetaData, outputLevel int, outputPathID uint32,
	dependence DependenceMap, edit *VersionEdit) (*FileMetaData, error) {
	icomp := b.tableCache.icomp
	emptyDependence := DependenceMap{}

	createIter := func(f *FileMetaData, depMap DependenceMap) (Iterator, *tableReader, error) {
		// map inputs are read as raw entry streams, not expanded
		if f.Prop.Purpose == PurposeMap {
			depMap = emptyDependence
		}
		return b.tableCache.NewIterator(ReadOptions{}, f, depMap)
	}
	iterCache := newIteratorCache(dependence, createIter)
	defer iterCache.close()

	boundBuilder := newFileMetaDataBoundBuilder(icomp)

	var levelRanges [][]rangeWithDepend
	inputRangeCount := 0

	// load input files, level 0 one vector per file since its files may overlap
	for _, levelFiles := range inputs {
		if len(levelFiles.Files) == 0 {
			continue
		}
		if levelFiles.Level == 0 {
			for _, f := range levelFiles.Files {
				ranges, err := loadRanges(nil, boundBuilder, iterCache, []*FileMetaData{f})
				if err != nil {
					return nil, err
				}
				inputRangeCount += len(ranges)
				levelRanges = append(levelRanges, ranges)
			}
		} else {
			ranges, err := loadRanges(nil, boundBuilder, iterCache, levelFiles.Files)
			if err != nil {
				return nil, err
			}
			inputRangeCount += len(ranges)
			levelRanges = append(levelRanges, ranges)
		}
	}

	// merge ranges, always the adjacent pair with the smallest combined size
	for len(levelRanges) > 1 {
		unionA := 0
		minSum := len(levelRanges[0]) + len(levelRanges[1])
		for i := 1; i+1 < len(levelRanges); i++ {
			if sum := len(levelRanges[i]) + len(levelRanges[i+1]); sum < minSum {
				minSum = sum
				unionA = i
			}
		}
		merged := partitionRanges(levelRanges[unionA], levelRanges[unionA+1], icomp, partitionMerge)
		levelRanges[unionA] = merged
		levelRanges = append(levelRanges[:unionA+1], levelRanges[unionA+2:]...)
	}

	if len(levelRanges) > 0 && len(deletedRanges) > 0 {
		masks := make([]rangeWithDepend, 0, len(deletedRanges))
		for _, r := range deletedRanges {
			masks = append(masks, newRangeFromKeyRange(r))
		}
		levelRanges[0] = partitionRanges(levelRanges[0], masks, icomp, partitionDelete)
		if len(levelRanges[0]) == 0 {
			levelRanges = levelRanges[:0]
		}
	}
	if len(addedFiles) > 0 {
		ranges, err := loadRanges(nil, boundBuilder, iterCache, addedFiles)
		if err != nil {
			return nil, err
		}
		if len(levelRanges) == 0 {
			levelRanges = append(levelRanges, ranges)
		} else {
			levelRanges[0] = partitionRanges(levelRanges[0], ranges, icomp, partitionMerge)
		}
	}

	editDelFile := func(level int, f *FileMetaData) {
		edit.DeleteFile(level, f.FD.FileNumber)
	}

	if len(levelRanges) == 0 {
		for _, inputLevel := range inputs {
			for _, f := range inputLevel.Files {
				editDelFile(inputLevel.Level, f)
			}
		}
		return nil, nil
	}

	ranges := levelRanges[0]

	// make sure level 0 files seqno no overlap
	if outputLevel != 0 || len(ranges) == 1 {
		sstLive := make(map[uint64]*FileMetaData)
		buildMapSst := false
		for i := range ranges {
			r := &ranges[i]
			if len(r.dependence) > 1 {
				buildMapSst = true
				break
			}
			f := iterCache.getFileMetaData(r.dependence[0].FileNumber)
			if f == nil || !isPrefaceRange(r, f, icomp) {
				buildMapSst = true
				break
			}
			sstLive[r.dependence[0].FileNumber] = f
		}
		if !buildMapSst {
			// unnecessary to build a map sst, move the survivors instead
			for _, inputLevel := range inputs {
				for _, f := range inputLevel.Files {
					fileNumber := f.FD.FileNumber
					if _, ok := sstLive[fileNumber]; ok {
						delete(sstLive, fileNumber)
						if outputLevel != inputLevel.Level {
							editDelFile(inputLevel.Level, f)
							edit.AddFile(outputLevel, f)
						}
					} else {
						editDelFile(inputLevel.Level, f)
					}
				}
			}
			for _, f := range sstLive {
				edit.AddFile(outputLevel, f)
			}
			return nil, nil
		}
	}

	if len(inputs) == 1 && len(inputs[0].Files) == 1 &&
		inputs[0].Files[0].Prop.Purpose == PurposeMap &&
		len(ranges) == inputRangeCount && allStable(ranges) {
		// all ranges stable, the new map would equal the input map, done
		return nil, nil
	}

	outputIter := newMapSstElementIterator(ranges, iterCache, icomp)

	fileMeta, err := b.writeOutputFile(boundBuilder, outputIter, outputPathID)
	if err != nil {
		return nil, err
	}

	for _, inputLevel := range inputs {
		for _, f := range inputLevel.Files {
			editDelFile(inputLevel.Level, f)
		}
	}
	for _, f := range addedFiles {
		// added files join the version as dependence-only entries
		edit.AddFile(-1, f)
	}
	edit.AddFile(outputLevel, fileMeta)
	return fileMeta, nil
}

func allStable(ranges []rangeWithDepend) bool {
	for i := range ranges {
		if !ranges[i].stable {
			return false
		}
	}
	return true
}

// writeOutputFile allocates a file number and writes the map table produced by
// rangeIter. On any failure the allocated number is abandoned and the partial
// file removed.
func (b *MapBuilder) writeOutputFile(boundBuilder *fileMetaDataBoundBuilder,
	rangeIter *mapSstElementIterator, outputPathID uint32) (*FileMetaData, error) {
	fileNumber := b.versions.NewFileNumber()
	fname := tableFileName(b.opts.DbPaths, outputPathID, fileNumber)

	wf, err := b.opts.Fs.create(fname)
	if err != nil {
		log.WithFields(log.Fields{"job": b.jobID, "file": fname, "error": err.Error()}).
			Error("storage::map_builder::writeOutputFile; cannot create output file")
		return nil, common.NewIOError("cannot create map table "+fname, err)
	}

	creationTime := boundBuilder.creationTime
	if creationTime == 0 {
		creationTime = uint64(b.opts.Clock.CurrentTime().Unix())
	}

	// map tables are small and carry no record payloads; compression is still
	// applied to the shared entry section by the codec
	builder := newTableBuilder(wf, fname, b.tableCache.icomp, PurposeMap, creationTime)

	for rangeIter.SeekToFirst(); rangeIter.Valid(); rangeIter.Next() {
		if err := builder.add(rangeIter.Key(), rangeIter.Value()); err != nil {
			break
		}
	}
	err = rangeIter.Status()

	var fileSize uint64
	var dependence []uint64
	if err == nil {
		dependenceBuild := rangeIter.getDependence()
		dependence = make([]uint64, 0, len(dependenceBuild))
		for fn := range dependenceBuild {
			dependence = append(dependence, fn)
		}
		sort.Slice(dependence, func(i, j int) bool { return dependence[i] < dependence[j] })
		builder.setDependence(dependence)
		builder.setReadAmp(rangeIter.getReadAmp())

		fileSize, err = builder.finish()
	} else {
		builder.abandon()
	}

	if err == nil && b.opts.MaxAllowedSpace > 0 &&
		b.versions.liveBytes()+fileSize > b.opts.MaxAllowedSpace {
		err = common.NewSpaceLimitError("Max allowed space was reached")
	}

	if err != nil {
		b.opts.Fs.remove(fname)
		log.WithFields(log.Fields{"job": b.jobID, "file": fname, "error": err.Error()}).
			Error("storage::map_builder::writeOutputFile; build failed, output removed")
		return nil, err
	}

	fileMeta := &FileMetaData{
		FD: FileDescriptor{
			FileNumber:    fileNumber,
			PathID:        outputPathID,
			FileSize:      fileSize,
			SmallestSeqno: boundBuilder.smallestSeqno,
			LargestSeqno:  boundBuilder.largestSeqno,
		},
		Smallest: boundBuilder.smallest.Clone(),
		Largest:  boundBuilder.largest.Clone(),
	}
	fileMeta.Prop.Purpose = PurposeMap
	fileMeta.Prop.CreationTime = creationTime
	fileMeta.Prop.Dependence = dependence
	fileMeta.Prop.ReadAmp = rangeIter.getReadAmp()

	log.Info(fmt.Sprintf("storage::map_builder; [JOB %d] generated map table #%d: %d keys, %d bytes",
		b.jobID, fileNumber, builder.entriesCount(), fileSize))
	return fileMeta, nil
}
