package storage

import (
	"io"
	"os"
	"time"
)

// file is a file opened for sequential reading.
type file interface {
	io.Reader
	io.Closer
}

// writableFile is a file opened for writing.
//
// *os.File satisfies it directly.
type writableFile interface {
	io.Writer
	Sync() error
	Close() error
}

// randomAccessFile is a file opened for random reads.
type randomAccessFile interface {
	io.ReaderAt
	io.Closer
}

// FileSystem is the file system abstraction.
//
// Contains functions which can be used to interact with the file system.
// Mainly a 1:1 mapping over the File interface: https://golang.org/pkg/os/#File
type FileSystem interface {
	// create creates or truncates the file for writing.
	create(name string) (writableFile, error)

	// open opens the file for sequential reading.
	// returns error if the file is not found.
	open(name string) (file, error)

	// openRandomAccess opens the file for random reads and returns its size.
	openRandomAccess(name string) (randomAccessFile, int64, error)

	// remove removes the file.
	// returns error if the file isn't found.
	remove(name string) error

	// rename renames the file from oldname to newname.
	// return error if the file with oldname is not found.
	rename(oldname, newname string) error

	// mkdirAll creates a dir with all the parents.
	//
	// returns nil if the operation was success or the dir already exists.
	mkdirAll(dir string, perm os.FileMode) error

	// lock creates a lock file in the directory.
	//
	// this is used to obtain exclusive access to the directory.
	lock(name string) error
}

// Clock provides the current time to components that stamp files.
type Clock interface {
	CurrentTime() time.Time
}

// DefaultFileSystem is a FileSystem implementation of the operating system.
var DefaultFileSystem FileSystem = defaultFileSystem{}

type defaultFileSystem struct{}

// create creates or truncates the file.
func (dfs defaultFileSystem) create(name string) (writableFile, error) {
	return os.Create(name)
}

// open opens the file for reading.
// returns error if the file is not found.
func (dfs defaultFileSystem) open(name string) (file, error) {
	return os.Open(name)
}

// openRandomAccess opens the file for random reads.
func (dfs defaultFileSystem) openRandomAccess(name string) (randomAccessFile, int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// remove removes the file.
// returns error if the file isn't found.
func (dfs defaultFileSystem) remove(name string) error {
	return os.Remove(name)
}

// rename renames the file from oldname to newname.
// return error if the file with oldname is not found.
func (dfs defaultFileSystem) rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

// mkdirAll creates a dir with all the parents.
//
// returns nil if the operation was success or the dir already exists.
func (dfs defaultFileSystem) mkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

// lock creates a lock file in the directory.
//
// this is used to obtain exclusive access to the directory.
func (dfs defaultFileSystem) lock(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	return f.Close()
}

// DefaultClock reads the wall clock.
var DefaultClock Clock = defaultClock{}

type defaultClock struct{}

func (dc defaultClock) CurrentTime() time.Time {
	return time.Now()
}
