package storage

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/dr0pdb/icefloedb/pkg/common"
)

// The manifest is a sequence of framed records, one version edit per record:
//    4 byte little endian crc32 of the payload
//    4 byte little endian payload length
//    payload
const logRecordHeaderSize = 8

// logRecordWriter frames records onto the manifest file.
type logRecordWriter struct {
	// w is the writer that logRecordWriter writes to
	w writableFile

	// err is any error encountered during any log record writer operation.
	err error
}

// newLogRecordWriter creates a new log record writer.
func newLogRecordWriter(w writableFile) *logRecordWriter {
	return &logRecordWriter{w: w}
}

// writeRecord frames and writes one record.
func (lrw *logRecordWriter) writeRecord(p []byte) error {
	if lrw.err != nil {
		return lrw.err
	}
	var header [logRecordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], crc32.ChecksumIEEE(p))
	binary.LittleEndian.PutUint32(header[4:], uint32(len(p)))
	if _, err := lrw.w.Write(header[:]); err != nil {
		lrw.err = common.NewIOError("manifest write failed", err)
		return lrw.err
	}
	if _, err := lrw.w.Write(p); err != nil {
		lrw.err = common.NewIOError("manifest write failed", err)
		return lrw.err
	}
	return nil
}

// sync flushes the manifest to stable storage.
func (lrw *logRecordWriter) sync() error {
	if lrw.err != nil {
		return lrw.err
	}
	if err := lrw.w.Sync(); err != nil {
		lrw.err = common.NewIOError("manifest sync failed", err)
	}
	return lrw.err
}

func (lrw *logRecordWriter) close() error {
	if lrw.w == nil {
		return nil
	}
	err := lrw.w.Close()
	lrw.w = nil
	return err
}

// logRecordReader reads back the records of a manifest file.
type logRecordReader struct {
	r file
}

func newLogRecordReader(r file) *logRecordReader {
	return &logRecordReader{r: r}
}

// readRecord returns the next record payload. io.EOF marks a clean end.
func (lrr *logRecordReader) readRecord() ([]byte, error) {
	var header [logRecordHeaderSize]byte
	if _, err := io.ReadFull(lrr.r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, common.NewCorruptionError("truncated manifest record header")
	}
	sum := binary.LittleEndian.Uint32(header[:4])
	length := binary.LittleEndian.Uint32(header[4:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(lrr.r, payload); err != nil {
		return nil, common.NewCorruptionError("truncated manifest record")
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, common.NewCorruptionError("manifest record checksum mismatch")
	}
	return payload, nil
}
