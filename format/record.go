package format

import (
	"encoding/binary"

	"github.com/cloudcmds/lazybin/errz"
)

// CodeRecord is a parsed view over one code unit record. Fixed fields are
// decoded once; the instruction stream and the index arrays remain views into
// the mapped bytes.
type CodeRecord struct {
	f     *File
	index int

	Flags           uint32
	ArgCount        uint32
	PosOnlyArgCount uint32
	KwOnlyArgCount  uint32
	NumLocals       uint32
	StackSize       uint32

	nameIndex    uint32
	excTable     uint32 // absolute blob offset, 0 = none
	filenameOff  uint32 // metadata-relative
	locationOff  uint32 // metadata-relative, 0 = none
	docstringOff uint32 // metadata-relative, 0 = none

	code     Words
	varNames u32s
	names    u32s
	consts   u32s
}

// u32s is a view over a u4 index array in the mapped bytes.
type u32s struct {
	data []byte
}

func (s u32s) Len() int {
	return len(s.data) / 4
}

func (s u32s) At(i int) uint32 {
	return binary.LittleEndian.Uint32(s.data[i*4:])
}

// recordCursor reads consecutive record fields with bounds checking. Every
// read fails with a corrupt-offset error once the record runs past the end of
// the file region.
type recordCursor struct {
	data []byte
	pos  uint32
	err  error
}

func (c *recordCursor) u32() uint32 {
	if c.err != nil {
		return 0
	}
	if int64(c.pos)+4 > int64(len(c.data)) {
		c.err = errz.Newf(errz.ErrCorruptOffset,
			"code record extends past file end").WithOffset(uint64(c.pos))
		return 0
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

// span consumes n bytes and returns them as a view.
func (c *recordCursor) span(n int64) []byte {
	if c.err != nil {
		return nil
	}
	if int64(c.pos)+n > int64(len(c.data)) {
		c.err = errz.Newf(errz.ErrCorruptOffset,
			"code record extends past file end").WithOffset(uint64(c.pos))
		return nil
	}
	v := c.data[c.pos : int64(c.pos)+n]
	c.pos += uint32(n)
	return v
}

// align4 skips the padding inserted after an odd-length instruction stream so
// the next u4 field lands on a 4-byte boundary.
func (c *recordCursor) align4() {
	if rem := c.pos % 4; rem != 0 {
		c.span(int64(4 - rem))
	}
}

// Record parses the code unit record at index i. Parsing validates that every
// variable-length part of the record lies within the file; indices held in
// the record are resolved lazily by their accessors.
func (f *File) Record(i int) (*CodeRecord, error) {
	base, err := f.CodeOffset(i)
	if err != nil {
		return nil, err
	}
	if base%4 != 0 {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"code record %d is misaligned", i).WithOffset(uint64(base))
	}
	rec := &CodeRecord{f: f, index: i}
	c := &recordCursor{data: f.data, pos: base}

	rec.Flags = c.u32()
	rec.ArgCount = c.u32()
	rec.PosOnlyArgCount = c.u32()
	rec.KwOnlyArgCount = c.u32()
	rec.NumLocals = c.u32()
	rec.StackSize = c.u32()
	rec.nameIndex = c.u32()
	rec.excTable = c.u32()
	rec.filenameOff = c.u32()
	rec.locationOff = c.u32()
	rec.docstringOff = c.u32()

	codeLen := c.u32()
	rec.code = NewWords(c.span(int64(codeLen) * 2))
	c.align4()

	nVars := c.u32()
	rec.varNames = u32s{data: c.span(int64(nVars) * 4)}
	nNames := c.u32()
	rec.names = u32s{data: c.span(int64(nNames) * 4)}
	nConsts := c.u32()
	rec.consts = u32s{data: c.span(int64(nConsts) * 4)}

	if c.err != nil {
		return nil, c.err
	}
	return rec, nil
}

// Index returns the record's position in the code-offset table.
func (r *CodeRecord) Index() int {
	return r.index
}

// Instructions returns the unit's instruction stream.
func (r *CodeRecord) Instructions() Words {
	return r.code
}

// Name materializes the unit's name from the string table.
func (r *CodeRecord) Name() (string, error) {
	return r.f.StringAt(int(r.nameIndex))
}

// Filename materializes the unit's source file name from the metadata pool.
func (r *CodeRecord) Filename() (string, error) {
	return r.f.meta.StringAt(r.filenameOff)
}

// Docstring materializes the unit's docstring. The second return value is
// false when the unit has none.
func (r *CodeRecord) Docstring() (string, bool, error) {
	if r.docstringOff == 0 {
		return "", false, nil
	}
	s, err := r.f.meta.StringAt(r.docstringOff)
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// LocationOffset returns the metadata-relative offset of the unit's location
// table, or 0 if the unit has none.
func (r *CodeRecord) LocationOffset() uint32 {
	return r.locationOff
}

// LocationData returns the raw location-table bytes for the unit.
func (r *CodeRecord) LocationData() ([]byte, error) {
	if r.locationOff == 0 {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"code unit %d has no location table", r.index)
	}
	return r.f.meta.BytesFrom(r.locationOff)
}

// ExceptionTableData returns the unit's raw exception table bytes, or nil if
// the unit has none. The table is stored varint-length-prefixed in the
// binary-data section.
func (r *CodeRecord) ExceptionTableData() ([]byte, error) {
	if r.excTable == 0 {
		return nil, nil
	}
	buf, err := r.f.blobAbs(r.excTable)
	if err != nil {
		return nil, err
	}
	s, err := decodeString(buf, uint64(r.excTable))
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// VarNameCount returns the number of local variable names.
func (r *CodeRecord) VarNameCount() int {
	return r.varNames.Len()
}

// VarName materializes local variable name i from the string table.
func (r *CodeRecord) VarName(i int) (string, error) {
	if i < 0 || i >= r.varNames.Len() {
		return "", errz.Newf(errz.ErrCorruptOffset,
			"local variable index %d out of range [0,%d)", i, r.varNames.Len())
	}
	return r.f.StringAt(int(r.varNames.At(i)))
}

// NameSlotCount returns the number of name slots in the unit's shared array.
func (r *CodeRecord) NameSlotCount() int {
	return r.names.Len()
}

// NameStringIndex returns the string-table index backing name slot i.
func (r *CodeRecord) NameStringIndex(i int) (uint32, error) {
	if i < 0 || i >= r.names.Len() {
		return 0, errz.Newf(errz.ErrCorruptOffset,
			"name slot %d out of range [0,%d)", i, r.names.Len())
	}
	return r.names.At(i), nil
}

// ConstSlotCount returns the number of constant slots in the unit's shared
// array.
func (r *CodeRecord) ConstSlotCount() int {
	return r.consts.Len()
}

// ConstObjectIndex returns the object-table index of the maker program for
// constant slot i.
func (r *CodeRecord) ConstObjectIndex(i int) (uint32, error) {
	if i < 0 || i >= r.consts.Len() {
		return 0, errz.Newf(errz.ErrCorruptOffset,
			"constant slot %d out of range [0,%d)", i, r.consts.Len())
	}
	return r.consts.At(i), nil
}

// SlotCount returns the total length of the unit's shared constants/names
// array.
func (r *CodeRecord) SlotCount() int {
	return r.names.Len() + r.consts.Len()
}
