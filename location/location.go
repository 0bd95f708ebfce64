// Package location implements the per-instruction source location table: an
// ordered run of fixed-size sections, each covering a contiguous range of
// instructions with a base line number and a varint-encoded stream of
// (line-delta, column) pairs.
//
// Entry 0 of the first section records the code unit's own definition
// location, so instruction index i is described by entry i+1.
package location

import (
	"encoding/binary"
	"sort"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/varint"
)

const (
	// SectionSize is the size of every section except possibly the last one
	// of a unit's table.
	SectionSize = 64

	// sectionHeaderSize covers line(u4), instruction_offset(u4),
	// filename_index(u1) and entry_count(u1).
	sectionHeaderSize = 10

	// maxSectionEntries is bounded by the u1 entry count field.
	maxSectionEntries = 255
)

// Entry is one source position supplied to the encoder.
type Entry struct {
	Line   int // 1-based line number
	Column int // 0-based column number
}

// Position is the result of a lookup.
type Position struct {
	Line      int
	Column    int
	FileIndex int
}

// section is the parsed header of one table section plus its position within
// the table bytes.
type section struct {
	stream     []byte // varint-encoded pairs
	line       int
	fileIndex  int
	entryCount int
	firstEntry int // global entry index of the section's first entry
}

// Table is a decoded view over one unit's location table. Lookups decode the
// owning section's varint stream sequentially; deltas accumulate from the
// section's base line.
type Table struct {
	sections []section
	total    int // entry count, instructionCount + 1
	size     int // bytes consumed from the input, including final padding
}

// Parse walks the section run for a unit with the given instruction count.
// The table covers instructionCount+1 entries; parsing stops once the section
// entry counts reach that total.
func Parse(data []byte, instructionCount int) (*Table, error) {
	if instructionCount < 0 {
		return nil, errz.New(errz.ErrCorruptOffset, "negative instruction count")
	}
	t := &Table{total: instructionCount + 1}
	entries := 0
	pos := 0
	prevInstrOffset := -1
	for entries < t.total {
		if pos+sectionHeaderSize > len(data) {
			return nil, errz.Newf(errz.ErrCorruptOffset,
				"location table needs %d entries but section run ends after %d",
				t.total, entries)
		}
		line := binary.LittleEndian.Uint32(data[pos:])
		instrOffset := binary.LittleEndian.Uint32(data[pos+4:])
		fileIndex := int(data[pos+8])
		count := int(data[pos+9])
		if count == 0 {
			return nil, errz.New(errz.ErrCorruptOffset,
				"location section declares zero entries")
		}
		if int(instrOffset) < prevInstrOffset {
			return nil, errz.Newf(errz.ErrCorruptOffset,
				"location sections not monotonic: offset %d after %d",
				instrOffset, prevInstrOffset)
		}
		prevInstrOffset = int(instrOffset)
		if entries+count > t.total {
			return nil, errz.Newf(errz.ErrCorruptOffset,
				"location sections cover %d entries; table declares %d",
				entries+count, t.total)
		}

		s := section{
			line:       int(line),
			fileIndex:  fileIndex,
			entryCount: count,
			firstEntry: entries,
		}
		last := entries+count == t.total
		if last {
			// The final section is only as long as its stream; measure it by
			// decoding and round the table size up to a 4-byte boundary.
			stream := data[pos+sectionHeaderSize:]
			n, err := streamLen(stream, count)
			if err != nil {
				return nil, err
			}
			s.stream = stream[:n]
			pos += sectionHeaderSize + n
			if rem := pos % 4; rem != 0 {
				pos += 4 - rem
			}
			if pos > len(data) {
				pos = len(data)
			}
		} else {
			if pos+SectionSize > len(data) {
				return nil, errz.New(errz.ErrCorruptOffset,
					"location section extends past metadata end")
			}
			s.stream = data[pos+sectionHeaderSize : pos+SectionSize]
			pos += SectionSize
		}
		t.sections = append(t.sections, s)
		entries += count
	}
	t.size = pos
	return t, nil
}

// streamLen returns the number of bytes occupied by count varint pairs at the
// start of stream.
func streamLen(stream []byte, count int) (int, error) {
	pos := 0
	for i := 0; i < count; i++ {
		_, n, err := varint.Varint(stream[pos:])
		if err != nil {
			return 0, err
		}
		pos += n
		_, n, err = varint.Uvarint(stream[pos:])
		if err != nil {
			return 0, err
		}
		pos += n
	}
	return pos, nil
}

// EntryCount returns the number of entries in the table, including the
// definition entry.
func (t *Table) EntryCount() int {
	return t.total
}

// SectionCount returns the number of sections in the table.
func (t *Table) SectionCount() int {
	return len(t.sections)
}

// Size returns the number of table bytes consumed by Parse.
func (t *Table) Size() int {
	return t.size
}

// Definition returns the code unit's own definition location: entry 0.
func (t *Table) Definition() (Position, error) {
	return t.entry(0)
}

// Lookup returns the source position of the instruction at the given index.
func (t *Table) Lookup(instructionIndex int) (Position, error) {
	if instructionIndex < 0 || instructionIndex+1 >= t.total {
		return Position{}, errz.Newf(errz.ErrCorruptOffset,
			"instruction index %d out of range [0,%d)", instructionIndex, t.total-1)
	}
	return t.entry(instructionIndex + 1)
}

// entry decodes the table entry with the given global index. Decoding is
// order-dependent within a section: the line delta of every entry up to the
// target accumulates onto the section's base line.
func (t *Table) entry(index int) (Position, error) {
	i := sort.Search(len(t.sections), func(i int) bool {
		return t.sections[i].firstEntry > index
	}) - 1
	s := &t.sections[i]

	line := s.line
	pos := 0
	var column uint64
	for k := 0; k <= index-s.firstEntry; k++ {
		delta, n, err := varint.Varint(s.stream[pos:])
		if err != nil {
			return Position{}, err
		}
		pos += n
		column, n, err = varint.Uvarint(s.stream[pos:])
		if err != nil {
			return Position{}, err
		}
		pos += n
		line += int(delta)
	}
	return Position{Line: line, Column: int(column), FileIndex: s.fileIndex}, nil
}
