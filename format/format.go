// Package format implements version 0 of the lazy bytecode container: a
// memory-mappable binary layout holding compiled code unit records, maker
// programs for their constants, a string table, a raw binary pool, and a
// trailing metadata section with per-instruction source locations.
//
// The layout is little-endian throughout. Every field's byte offset within
// the file is a multiple of the field's own size. All offsets are absolute
// from the start of the file, except offsets into the metadata section,
// which are relative to the metadata start so the section can be loaded
// standalone.
//
// A loaded File performs no payload decoding up front: the header and the
// section directory are validated eagerly, and every other offset is
// bounds-checked at the point of first use.
package format

// Magic is the 4-byte tag at the start of every container file.
const Magic = ".pyc"

// Version is the container format version this package reads and writes.
const Version uint16 = 0

// Section layout constants. The fixed header is immediately followed by the
// section directory, then the code-offset table.
const (
	headerSize    = 16
	directorySize = 16

	// codeOffsetsStart is the file offset of the code-offset table.
	codeOffsetsStart = headerSize + directorySize
)

// Header field offsets.
const (
	offMagic       = 0
	offVersion     = 4
	offCodeCount   = 6
	offMetaStart   = 8
	offTotalSize   = 12
	offObjectTable = 16
	offStringTable = 20
	offBlobStart   = 24
	offBlobSize    = 28
)

// MaxCodeUnits is the largest number of code units a container can declare,
// bounded by the u2 count field in the header.
const MaxCodeUnits = 1<<16 - 1
