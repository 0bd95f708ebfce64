package format

import (
	"encoding/binary"

	"github.com/cloudcmds/lazybin/errz"
)

// Metadata is a view over the trailing metadata section of a container. All
// offsets inside the section are relative to its start, so the section can be
// loaded on its own, without the rest of the file.
//
// Layout: n_files(u4), files(u4 x n_files), location-table sections, byte
// pool. The file entries point at varint-length-prefixed UTF-8 names in the
// pool.
type Metadata struct {
	data      []byte
	fileCount int
}

// ParseMetadata validates the metadata header over the given section bytes
// and returns a view. Offsets into the pool are validated lazily on use.
func ParseMetadata(data []byte) (*Metadata, error) {
	if len(data) < 4 {
		return nil, errz.Newf(errz.ErrTruncated,
			"metadata section has %d bytes; header requires 4", len(data))
	}
	n := binary.LittleEndian.Uint32(data)
	if int64(4)+int64(n)*4 > int64(len(data)) {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"file table of %d entries extends past metadata end", n)
	}
	return &Metadata{data: data, fileCount: int(n)}, nil
}

// Size returns the size of the metadata section in bytes.
func (m *Metadata) Size() int {
	return len(m.data)
}

// FileCount returns the number of source files named by the section.
func (m *Metadata) FileCount() int {
	return m.fileCount
}

// FileName materializes the name of source file i.
func (m *Metadata) FileName(i int) (string, error) {
	if i < 0 || i >= m.fileCount {
		return "", errz.Newf(errz.ErrCorruptOffset,
			"file index %d out of range [0,%d)", i, m.fileCount)
	}
	off := binary.LittleEndian.Uint32(m.data[4+i*4:])
	return m.StringAt(off)
}

// StringAt materializes a varint-length-prefixed UTF-8 string at the given
// section-relative offset.
func (m *Metadata) StringAt(off uint32) (string, error) {
	buf, err := m.BytesFrom(off)
	if err != nil {
		return "", err
	}
	return decodeString(buf, uint64(off))
}

// BytesFrom returns the tail of the metadata section starting at the given
// section-relative offset.
func (m *Metadata) BytesFrom(off uint32) ([]byte, error) {
	if int64(off) > int64(len(m.data)) {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"metadata offset %d outside section of %d bytes", off, len(m.data)).
			WithOffset(uint64(off))
	}
	return m.data[off:], nil
}
