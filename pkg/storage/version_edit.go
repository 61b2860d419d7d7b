package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/dr0pdb/icefloedb/pkg/common"
)

const (
	tagComparatorName = 1
	tagNextFileNumber = 2
	tagDeletedFile    = 3
	tagNewFile        = 4
)

type deletedFileEntry struct {
	level   int
	fileNum uint64
}

type newFileEntry struct {
	// level -1 marks a dependence-only file: reachable through map links but
	// not queried at any level directly.
	level int
	meta  *FileMetaData
}

// VersionEdit stores the data indicating a version edit.
//
// It is used in various situations:
// 1. Creation of db.
// 2. Compaction of the db.
// A builder accumulates AddFile/DeleteFile calls into one edit which the
// version set applies atomically.
type VersionEdit struct {
	// the name of the user key comparator used in the version.
	comparatorName string

	// the next file number available.
	nextFileNumber uint64

	// files deleted during this edit. Usually during compaction.
	deletedFiles []deletedFileEntry

	// newly added files during this edit. Usually during compaction or when one file is full.
	newFiles []newFileEntry
}

// AddFile records the addition of meta at level.
func (ve *VersionEdit) AddFile(level int, meta *FileMetaData) {
	ve.newFiles = append(ve.newFiles, newFileEntry{level: level, meta: meta})
}

// DeleteFile records the removal of fileNum from level.
func (ve *VersionEdit) DeleteFile(level int, fileNum uint64) {
	ve.deletedFiles = append(ve.deletedFiles, deletedFileEntry{level: level, fileNum: fileNum})
}

// Empty reports whether the edit records no changes.
func (ve *VersionEdit) Empty() bool {
	return ve.comparatorName == "" && ve.nextFileNumber == 0 &&
		len(ve.deletedFiles) == 0 && len(ve.newFiles) == 0
}

// encode encodes the contents of a version edit to be written to the manifest.
func (ve *VersionEdit) encode() []byte {
	venc := versionEditEncoder{new(bytes.Buffer)}

	if ve.comparatorName != "" {
		venc.writeUvarint(tagComparatorName)
		venc.writeString(ve.comparatorName)
	}

	if ve.nextFileNumber != 0 {
		venc.writeUvarint(tagNextFileNumber)
		venc.writeUvarint(ve.nextFileNumber)
	}

	for _, x := range ve.deletedFiles {
		venc.writeUvarint(tagDeletedFile)
		venc.writeVarint(int64(x.level))
		venc.writeUvarint(x.fileNum)
	}

	for _, x := range ve.newFiles {
		venc.writeUvarint(tagNewFile)
		venc.writeVarint(int64(x.level))
		venc.writeUvarint(x.meta.FD.FileNumber)
		venc.writeUvarint(uint64(x.meta.FD.PathID))
		venc.writeUvarint(x.meta.FD.FileSize)
		venc.writeUvarint(x.meta.FD.SmallestSeqno)
		venc.writeUvarint(x.meta.FD.LargestSeqno)
		venc.writeBytes(x.meta.Smallest)
		venc.writeBytes(x.meta.Largest)
		venc.writeUvarint(uint64(x.meta.Prop.Purpose))
		venc.writeUvarint(x.meta.Prop.CreationTime)
		venc.writeUvarint(uint64(x.meta.Prop.ReadAmp))
		venc.writeUvarint(uint64(len(x.meta.Prop.Dependence)))
		for _, fn := range x.meta.Prop.Dependence {
			venc.writeUvarint(fn)
		}
	}
	return venc.Bytes()
}

// decode parses an encoded version edit.
func (ve *VersionEdit) decode(data []byte) error {
	vdec := versionEditDecoder{bytes.NewBuffer(data)}
	for vdec.Len() > 0 {
		tag, err := vdec.readUvarint()
		if err != nil {
			return common.NewCorruptionError("bad version edit tag")
		}
		switch tag {
		case tagComparatorName:
			s, err := vdec.readString()
			if err != nil {
				return err
			}
			ve.comparatorName = s
		case tagNextFileNumber:
			n, err := vdec.readUvarint()
			if err != nil {
				return err
			}
			ve.nextFileNumber = n
		case tagDeletedFile:
			level, err := vdec.readVarint()
			if err != nil {
				return err
			}
			fileNum, err := vdec.readUvarint()
			if err != nil {
				return err
			}
			ve.deletedFiles = append(ve.deletedFiles,
				deletedFileEntry{level: int(level), fileNum: fileNum})
		case tagNewFile:
			level, err := vdec.readVarint()
			if err != nil {
				return err
			}
			meta := &FileMetaData{}
			ue := []error{}
			read := func() uint64 {
				v, err := vdec.readUvarint()
				if err != nil {
					ue = append(ue, err)
				}
				return v
			}
			meta.FD.FileNumber = read()
			meta.FD.PathID = uint32(read())
			meta.FD.FileSize = read()
			meta.FD.SmallestSeqno = read()
			meta.FD.LargestSeqno = read()
			smallest, err := vdec.readBytes()
			if err != nil {
				return err
			}
			largest, err := vdec.readBytes()
			if err != nil {
				return err
			}
			meta.Smallest = InternalKey(smallest)
			meta.Largest = InternalKey(largest)
			meta.Prop.Purpose = TablePurpose(read())
			meta.Prop.CreationTime = read()
			meta.Prop.ReadAmp = int(read())
			depCount := read()
			for i := uint64(0); i < depCount; i++ {
				meta.Prop.Dependence = append(meta.Prop.Dependence, read())
			}
			if len(ue) > 0 {
				return common.NewCorruptionError("bad new file entry in version edit")
			}
			ve.newFiles = append(ve.newFiles, newFileEntry{level: int(level), meta: meta})
		default:
			return common.NewCorruptionError("unknown version edit tag")
		}
	}
	return nil
}

// versionEditEncoder is a struct containing the encoded data.
// Provides utility methods on it to encode various data types
type versionEditEncoder struct {
	*bytes.Buffer
}

func (vee versionEditEncoder) writeBytes(b []byte) {
	vee.writeUvarint(uint64(len(b)))
	vee.Write(b)
}

func (vee versionEditEncoder) writeUvarint(u uint64) {
	var buffer [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buffer[:], u)
	vee.Write(buffer[:n])
}

func (vee versionEditEncoder) writeVarint(v int64) {
	var buffer [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buffer[:], v)
	vee.Write(buffer[:n])
}

func (vee versionEditEncoder) writeString(s string) {
	vee.writeUvarint(uint64(len(s)))
	vee.WriteString(s)
}

type versionEditDecoder struct {
	*bytes.Buffer
}

func (ved versionEditDecoder) readUvarint() (uint64, error) {
	v, err := binary.ReadUvarint(ved.Buffer)
	if err != nil {
		return 0, common.NewCorruptionError("truncated version edit")
	}
	return v, nil
}

func (ved versionEditDecoder) readVarint() (int64, error) {
	v, err := binary.ReadVarint(ved.Buffer)
	if err != nil {
		return 0, common.NewCorruptionError("truncated version edit")
	}
	return v, nil
}

func (ved versionEditDecoder) readBytes() ([]byte, error) {
	n, err := ved.readUvarint()
	if err != nil {
		return nil, err
	}
	if uint64(ved.Len()) < n {
		return nil, common.NewCorruptionError("truncated version edit")
	}
	return ved.Next(int(n)), nil
}

func (ved versionEditDecoder) readString() (string, error) {
	b, err := ved.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
