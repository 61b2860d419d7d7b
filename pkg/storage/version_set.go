package storage

import (
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dr0pdb/icefloedb/pkg/common"
	log "github.com/sirupsen/logrus"
)

// VersionSet owns the sequence of published versions, the file number
// allocator and the manifest log.
//
// Output files of a build become visible only through LogAndApply; until then
// no reader can observe them.
type VersionSet struct {
	dirname string
	opts    *Options

	tableCache *TableCache

	// the next file number available. Atomic, no lock needed for allocation.
	nextFileNumber uint64

	mu sync.Mutex

	current *version

	// dependence-only files: reachable through map links, not at any level.
	dependenceFiles map[uint64]*FileMetaData

	manifest *logRecordWriter
}

// NewVersionSet opens (or creates) the version state in dirname.
func NewVersionSet(dirname string, opts *Options, tableCache *TableCache) (*VersionSet, error) {
	opts.applyDefaults()
	if err := opts.Fs.mkdirAll(dirname, os.ModePerm); err != nil {
		return nil, common.NewIOError("cannot create db directory "+dirname, err)
	}
	if err := opts.Fs.lock(getDbFileName(dirname, lockFileType, 0)); err != nil {
		return nil, common.NewIOError("cannot lock db directory "+dirname, err)
	}

	vs := &VersionSet{
		dirname:         dirname,
		opts:            opts,
		tableCache:      tableCache,
		nextFileNumber:  1,
		current:         newVersion(nil),
		dependenceFiles: make(map[uint64]*FileMetaData),
	}
	if err := vs.recover(); err != nil {
		return nil, err
	}

	mf, err := opts.Fs.create(getDbFileName(dirname, manifestFileType, 0))
	if err != nil {
		return nil, common.NewIOError("cannot create manifest", err)
	}
	vs.manifest = newLogRecordWriter(mf)

	// rewrite the recovered state as the first record of the fresh manifest
	snapshot := vs.snapshotEdit()
	if !snapshot.Empty() {
		if err := vs.manifest.writeRecord(snapshot.encode()); err != nil {
			return nil, err
		}
		if err := vs.manifest.sync(); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

// recover replays the existing manifest, if any.
func (vs *VersionSet) recover() error {
	mf, err := vs.opts.Fs.open(getDbFileName(vs.dirname, manifestFileType, 0))
	if err != nil {
		// a missing manifest means a fresh db
		return nil
	}
	defer mf.Close()

	reader := newLogRecordReader(mf)
	for {
		record, err := reader.readRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		var edit VersionEdit
		if err := edit.decode(record); err != nil {
			return err
		}
		vs.applyLocked(&edit)
	}
	log.WithFields(log.Fields{"dirname": vs.dirname, "nextFileNumber": vs.nextFileNumber}).
		Info("storage::version_set::recover; recovered version state")
	return nil
}

// NewFileNumber allocates a fresh file number.
func (vs *VersionSet) NewFileNumber() uint64 {
	return atomic.AddUint64(&vs.nextFileNumber, 1) - 1
}

// Current returns the live version. The returned levels and dependence map
// must not be mutated.
func (vs *VersionSet) Current() ([][]*FileMetaData, DependenceMap) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.current.levels, vs.current.dependence
}

// liveBytes sums the sizes of every live table file.
func (vs *VersionSet) liveBytes() uint64 {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	var total uint64
	for _, f := range vs.current.dependence {
		total += f.FD.FileSize
	}
	return total
}

// snapshotEdit flattens the current state into one edit.
func (vs *VersionSet) snapshotEdit() *VersionEdit {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	edit := &VersionEdit{
		comparatorName: vs.opts.Comparator.Name(),
		nextFileNumber: atomic.LoadUint64(&vs.nextFileNumber),
	}
	for level, files := range vs.current.levels {
		for _, f := range files {
			edit.AddFile(level, f)
		}
	}
	for _, f := range vs.dependenceFiles {
		edit.AddFile(-1, f)
	}
	return edit
}

// LogAndApply persists edit to the manifest and publishes the new version.
// Deleted files are evicted from the table cache.
func (vs *VersionSet) LogAndApply(edit *VersionEdit) error {
	edit.nextFileNumber = atomic.LoadUint64(&vs.nextFileNumber)
	if vs.manifest != nil {
		if err := vs.manifest.writeRecord(edit.encode()); err != nil {
			return err
		}
		if err := vs.manifest.sync(); err != nil {
			return err
		}
	}
	vs.mu.Lock()
	deleted := vs.applyLocked(edit)
	vs.mu.Unlock()

	for _, fileNum := range deleted {
		if vs.tableCache != nil {
			vs.tableCache.Evict(fileNum)
		}
	}
	return nil
}

// applyLocked folds edit into the current version and returns the deleted
// file numbers. Caller holds vs.mu (except during single threaded recovery).
func (vs *VersionSet) applyLocked(edit *VersionEdit) []uint64 {
	if edit.nextFileNumber > atomic.LoadUint64(&vs.nextFileNumber) {
		atomic.StoreUint64(&vs.nextFileNumber, edit.nextFileNumber)
	}

	maxLevel := len(vs.current.levels) - 1
	for _, x := range edit.newFiles {
		if x.level > maxLevel {
			maxLevel = x.level
		}
	}
	levels := make([][]*FileMetaData, maxLevel+1)
	for i, files := range vs.current.levels {
		levels[i] = append([]*FileMetaData(nil), files...)
	}

	// pool of every meta that could still be referenced after this edit
	pool := make(map[uint64]*FileMetaData)
	for fn, f := range vs.current.dependence {
		pool[fn] = f
	}
	for fn, f := range vs.dependenceFiles {
		pool[fn] = f
	}
	for _, x := range edit.newFiles {
		pool[x.meta.FD.FileNumber] = x.meta
	}

	var deleted []uint64
	for _, x := range edit.deletedFiles {
		deleted = append(deleted, x.fileNum)
		if x.level >= 0 && x.level < len(levels) {
			files := levels[x.level]
			for i, f := range files {
				if f.FD.FileNumber == x.fileNum {
					levels[x.level] = append(files[:i:i], files[i+1:]...)
					break
				}
			}
		}
	}

	icomp := newInternalKeyComparator(vs.opts.Comparator)
	for _, x := range edit.newFiles {
		if x.level < 0 {
			continue
		}
		levels[x.level] = append(levels[x.level], x.meta)
		if x.level > 0 {
			files := levels[x.level]
			sort.Slice(files, func(i, j int) bool {
				return icomp.Compare(files[i].Largest, files[j].Largest) < 0
			})
		}
	}

	// files linked by a live map table stay resolvable even after their level
	// entry was deleted: chase dependence properties through the pool
	v := newVersion(levels)
	queue := make([]*FileMetaData, 0, len(v.dependence))
	for _, f := range v.dependence {
		queue = append(queue, f)
	}
	for len(queue) > 0 {
		f := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, fn := range f.Prop.Dependence {
			if _, ok := v.dependence[fn]; ok {
				continue
			}
			if df, ok := pool[fn]; ok {
				v.dependence[fn] = df
				queue = append(queue, df)
			}
		}
	}

	// remember dependence-only files for the next edit's pool
	vs.dependenceFiles = make(map[uint64]*FileMetaData)
	onLevel := make(map[uint64]bool)
	for _, files := range levels {
		for _, f := range files {
			onLevel[f.FD.FileNumber] = true
		}
	}
	for fn, f := range v.dependence {
		if !onLevel[fn] {
			vs.dependenceFiles[fn] = f
		}
	}

	// only files nothing references anymore get evicted
	kept := deleted[:0]
	for _, fn := range deleted {
		if _, ok := v.dependence[fn]; !ok {
			kept = append(kept, fn)
		}
	}

	vs.current = v
	return kept
}

// Close releases the manifest.
func (vs *VersionSet) Close() error {
	if vs.manifest != nil {
		return vs.manifest.close()
	}
	return nil
}
