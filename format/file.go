package format

import (
	"encoding/binary"

	"github.com/rs/zerolog"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/varint"
)

// File is a read-only view over one mapped container. It holds a reference to
// the mapped bytes and lightweight index state; it never copies payload bytes.
// A File is immutable after Load and safe for concurrent use.
type File struct {
	data      []byte
	version   uint16
	codeCount int
	metaStart uint32
	totalSize uint32
	objTable  uint32
	strTable  uint32
	blobStart uint32
	blobSize  uint32
	meta      *Metadata
	logger    zerolog.Logger
}

// Option configures a Load call.
type Option func(*File)

// WithLogger attaches a logger that receives debug events during load and
// verification. The default logger is disabled.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *File) {
		f.logger = logger
	}
}

// Load validates the header and section directory of the given byte region
// and returns a File over it. The region is typically a read-only memory
// mapping; Load retains it without copying. Offsets beyond the header are
// validated lazily, at the point of first dereference.
func Load(data []byte, opts ...Option) (*File, error) {
	f := &File{
		data:   data,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if len(data) < codeOffsetsStart {
		return nil, errz.Newf(errz.ErrTruncated,
			"file has %d bytes; header requires %d", len(data), codeOffsetsStart)
	}
	if string(data[offMagic:offMagic+4]) != Magic {
		return nil, errz.New(errz.ErrVersion, "bad magic: not a container file")
	}
	f.version = binary.LittleEndian.Uint16(data[offVersion:])
	if f.version != Version {
		return nil, errz.Newf(errz.ErrVersion,
			"format version %d is not supported", f.version)
	}
	f.codeCount = int(binary.LittleEndian.Uint16(data[offCodeCount:]))
	f.metaStart = binary.LittleEndian.Uint32(data[offMetaStart:])
	f.totalSize = binary.LittleEndian.Uint32(data[offTotalSize:])
	f.objTable = binary.LittleEndian.Uint32(data[offObjectTable:])
	f.strTable = binary.LittleEndian.Uint32(data[offStringTable:])
	f.blobStart = binary.LittleEndian.Uint32(data[offBlobStart:])
	f.blobSize = binary.LittleEndian.Uint32(data[offBlobSize:])

	if int64(f.totalSize) > int64(len(data)) {
		return nil, errz.Newf(errz.ErrTruncated,
			"declared size %d exceeds available %d bytes", f.totalSize, len(data))
	}
	if f.totalSize < codeOffsetsStart {
		return nil, errz.Newf(errz.ErrTruncated,
			"declared size %d is smaller than the header", f.totalSize)
	}
	// The mapping may be larger than the file; everything past the declared
	// size is ignored.
	f.data = data[:f.totalSize]

	if f.metaStart%4 != 0 || f.metaStart < codeOffsetsStart || f.metaStart > f.totalSize {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"metadata start %d outside file of size %d", f.metaStart, f.totalSize).
			WithOffset(offMetaStart)
	}

	if int64(f.blobStart)+int64(f.blobSize) > int64(f.totalSize) {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"binary-data section [%d,%d) outside file of size %d",
			f.blobStart, f.blobStart+f.blobSize, f.totalSize).
			WithOffset(offBlobStart)
	}

	// The metadata section is re-validated independently so it can also be
	// loaded standalone.
	meta, err := ParseMetadata(f.data[f.metaStart:f.totalSize])
	if err != nil {
		return nil, err
	}
	f.meta = meta

	f.logger.Debug().
		Int("code_units", f.codeCount).
		Uint32("meta_start", f.metaStart).
		Uint32("total_size", f.totalSize).
		Int("files", meta.FileCount()).
		Msg("container loaded")
	return f, nil
}

// Version returns the container format version.
func (f *File) Version() uint16 {
	return f.version
}

// CodeUnitCount returns the number of code unit records declared in the
// header.
func (f *File) CodeUnitCount() int {
	return f.codeCount
}

// Size returns the declared total size of the container in bytes.
func (f *File) Size() int {
	return int(f.totalSize)
}

// Metadata returns the parsed trailing metadata section.
func (f *File) Metadata() *Metadata {
	return f.meta
}

// u32 reads a u4 field at an absolute offset with bounds and alignment checks.
func (f *File) u32(off uint32) (uint32, error) {
	if off%4 != 0 {
		return 0, errz.Newf(errz.ErrCorruptOffset, "misaligned u4 field").WithOffset(uint64(off))
	}
	if int64(off)+4 > int64(len(f.data)) {
		return 0, errz.Newf(errz.ErrCorruptOffset,
			"u4 field extends past file end (%d bytes)", len(f.data)).WithOffset(uint64(off))
	}
	return binary.LittleEndian.Uint32(f.data[off:]), nil
}

// CodeOffset returns the absolute offset of code unit record i.
func (f *File) CodeOffset(i int) (uint32, error) {
	if i < 0 || i >= f.codeCount {
		return 0, errz.Newf(errz.ErrCorruptOffset,
			"code unit index %d out of range [0,%d)", i, f.codeCount)
	}
	return f.u32(codeOffsetsStart + uint32(i)*4)
}

// ObjectCount returns the number of maker programs in the object table.
func (f *File) ObjectCount() (int, error) {
	n, err := f.u32(f.objTable)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ObjectCode returns the maker program at the given object-table index as a
// view over the mapped bytes.
func (f *File) ObjectCode(i int) (Words, error) {
	count, err := f.ObjectCount()
	if err != nil {
		return Words{}, err
	}
	if i < 0 || i >= count {
		return Words{}, errz.Newf(errz.ErrCorruptOffset,
			"object index %d out of range [0,%d)", i, count)
	}
	off, err := f.u32(f.objTable + 4 + uint32(i)*4)
	if err != nil {
		return Words{}, err
	}
	length, err := f.u32(off)
	if err != nil {
		return Words{}, err
	}
	end := int64(off) + 4 + int64(length)*2
	if end > int64(len(f.data)) {
		return Words{}, errz.Newf(errz.ErrCorruptOffset,
			"maker program of %d words extends past file end", length).WithOffset(uint64(off))
	}
	return NewWords(f.data[off+4 : end]), nil
}

// StringCount returns the number of entries in the string table.
func (f *File) StringCount() (int, error) {
	n, err := f.u32(f.strTable)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// StringAt materializes string-table entry i: a varint length followed by
// UTF-8 bytes in the binary-data section.
func (f *File) StringAt(i int) (string, error) {
	count, err := f.StringCount()
	if err != nil {
		return "", err
	}
	if i < 0 || i >= count {
		return "", errz.Newf(errz.ErrCorruptOffset,
			"string index %d out of range [0,%d)", i, count)
	}
	off, err := f.u32(f.strTable + 4 + uint32(i)*4)
	if err != nil {
		return "", err
	}
	if off < f.blobStart || int64(off) >= int64(f.blobStart)+int64(f.blobSize) {
		return "", errz.Newf(errz.ErrCorruptOffset,
			"string %d offset outside binary-data section", i).WithOffset(uint64(off))
	}
	return decodeString(f.data[off:f.blobStart+f.blobSize], uint64(off))
}

// Blob returns length bytes of the binary-data section starting at the given
// offset relative to the section start.
func (f *File) Blob(off, length uint32) ([]byte, error) {
	if int64(off)+int64(length) > int64(f.blobSize) {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"blob range [%d,%d) outside section of %d bytes", off, off+length, f.blobSize).
			WithOffset(uint64(f.blobStart + off))
	}
	abs := f.blobStart + off
	return f.data[abs : abs+length : abs+length], nil
}

// BlobFrom returns the tail of the binary-data section starting at the given
// section-relative offset.
func (f *File) BlobFrom(off uint32) ([]byte, error) {
	if int64(off) > int64(f.blobSize) {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"blob offset %d outside section of %d bytes", off, f.blobSize).
			WithOffset(uint64(f.blobStart + off))
	}
	return f.data[f.blobStart+off : f.blobStart+f.blobSize], nil
}

// blobAbs bounds-checks an absolute offset against the binary-data section
// and returns the tail from there.
func (f *File) blobAbs(off uint32) ([]byte, error) {
	if off < f.blobStart || int64(off) > int64(f.blobStart)+int64(f.blobSize) {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"offset outside binary-data section").WithOffset(uint64(off))
	}
	return f.data[off : f.blobStart+f.blobSize], nil
}

// decodeString decodes a varint-length-prefixed UTF-8 string at the start of
// buf. The offset is used only for error context.
func decodeString(buf []byte, off uint64) (string, error) {
	n, consumed, err := varint.Uvarint(buf)
	if err != nil {
		return "", err
	}
	if n > uint64(len(buf)-consumed) {
		return "", errz.Newf(errz.ErrCorruptOffset,
			"string of %d bytes extends past section end", n).WithOffset(off)
	}
	return string(buf[consumed : consumed+int(n)]), nil
}
