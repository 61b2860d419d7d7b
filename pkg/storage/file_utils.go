package storage

import (
	"fmt"
	"os"
)

type fileType int

const (
	lockFileType fileType = iota
	currentFileType
	manifestFileType
	tableFileType
)

// getDbFileName returns the name of the file stored on the disk for a particular type and number.
func getDbFileName(dirname string, fileType fileType, fileNum uint64) string {
	// reset trailing slashes
	for len(dirname) > 0 && dirname[len(dirname)-1] == os.PathSeparator {
		dirname = dirname[:len(dirname)-1]
	}

	switch fileType {
	case lockFileType:
		return fmt.Sprintf("%s%cLOCK", dirname, os.PathSeparator)
	case currentFileType:
		return fmt.Sprintf("%s%cCURRENT", dirname, os.PathSeparator)
	case manifestFileType:
		return fmt.Sprintf("%s%cMANIFEST", dirname, os.PathSeparator)
	case tableFileType:
		return fmt.Sprintf("%s%c%06d.sst", dirname, os.PathSeparator, fileNum)
	}

	panic("invalid file type")
}

// tableFileName returns the full path of the table file with the given number.
// The path is picked from paths by the descriptor's path id. A path id out of
// bounds falls back to the first path.
func tableFileName(paths []string, pathID uint32, fileNum uint64) string {
	dir := paths[0]
	if int(pathID) < len(paths) {
		dir = paths[pathID]
	}
	return getDbFileName(dir, tableFileType, fileNum)
}
