package format

import (
	"encoding/binary"
	"math"
	"math/big"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/location"
	"github.com/cloudcmds/lazybin/op"
	"github.com/cloudcmds/lazybin/varint"
)

// UnitParams contains the parameters for adding one code unit to a Builder.
type UnitParams struct {
	Flags           uint32
	ArgCount        uint32
	PosOnlyArgCount uint32
	KwOnlyArgCount  uint32
	NumLocals       uint32
	StackSize       uint32

	Name      string
	Filename  string
	Docstring string // "" means no docstring

	Instructions []op.Code
	VarNames     []string
	Names        []string // name slots, low end of the shared array
	Constants    []int    // object-table indices, high end of the shared array

	// Definition is the unit's own declaration location (entry 0 of its
	// location table). Locations holds one entry per instruction; leave nil
	// to omit the location table entirely.
	Definition location.Entry
	Locations  []location.Entry

	ExceptionTable []byte
}

type builderUnit struct {
	params    UnitParams
	fileIndex int
	excOff    uint32 // blob-relative, valid when hasExc
	hasExc    bool
}

// Builder assembles a container file. It is the write half of the format:
// register strings, binary data, maker programs, and code units, then call
// Bytes once. A Builder is single-use and not safe for concurrent use.
type Builder struct {
	units   []builderUnit
	objects [][]op.Code
	strings []string
	strIdx  map[string]int
	blob    []byte
	files   []string
	fileIdx map[string]int
}

// NewBuilder creates an empty container builder.
func NewBuilder() *Builder {
	return &Builder{
		strIdx:  map[string]int{},
		fileIdx: map[string]int{},
	}
}

// InternString registers s in the string table and returns its index.
// Duplicate strings share one entry.
func (b *Builder) InternString(s string) int {
	if i, ok := b.strIdx[s]; ok {
		return i
	}
	i := len(b.strings)
	b.strings = append(b.strings, s)
	b.strIdx[s] = i
	return i
}

// AddBlob appends raw bytes to the binary-data section and returns their
// offset relative to the section start.
func (b *Builder) AddBlob(p []byte) uint32 {
	off := uint32(len(b.blob))
	b.blob = append(b.blob, p...)
	return off
}

// AddFloat stores an 8-byte IEEE-754 value in the binary-data section,
// aligned so the mapped field sits on an 8-byte boundary, and returns its
// offset for use as a MAKE_FLOAT operand.
func (b *Builder) AddFloat(v float64) uint32 {
	for len(b.blob)%8 != 0 {
		b.blob = append(b.blob, 0)
	}
	off := uint32(len(b.blob))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	b.blob = append(b.blob, buf[:]...)
	return off
}

// AddBigInt stores an arbitrary-precision integer in the binary-data section
// and returns its offset for use as a MAKE_BIGINT operand. The encoding is a
// signed varint byte count, whose sign is the sign of the value, followed by
// that many little-endian magnitude bytes.
func (b *Builder) AddBigInt(v *big.Int) uint32 {
	mag := v.Bytes() // big-endian magnitude
	for i, j := 0, len(mag)-1; i < j; i, j = i+1, j-1 {
		mag[i], mag[j] = mag[j], mag[i]
	}
	n := int64(len(mag))
	if v.Sign() < 0 {
		n = -n
	}
	off := uint32(len(b.blob))
	b.blob = varint.AppendVarint(b.blob, n)
	b.blob = append(b.blob, mag...)
	return off
}

// addLenPrefixed stores varint-length-prefixed bytes in the binary-data
// section and returns their offset.
func (b *Builder) addLenPrefixed(p []byte) uint32 {
	off := uint32(len(b.blob))
	b.blob = varint.AppendUvarint(b.blob, uint64(len(p)))
	b.blob = append(b.blob, p...)
	return off
}

// AddObject registers a maker program in the object table and returns its
// index. The program must terminate with RETURN_CONSTANT; this is checked
// when the file is assembled.
func (b *Builder) AddObject(code []op.Code) int {
	cp := make([]op.Code, len(code))
	copy(cp, code)
	b.objects = append(b.objects, cp)
	return len(b.objects) - 1
}

// AddUnit registers a code unit and returns its index in the code table.
func (b *Builder) AddUnit(p UnitParams) (int, error) {
	if len(b.units) >= MaxCodeUnits {
		return 0, errz.Newf(errz.ErrCorruptOffset,
			"too many code units (max %d)", MaxCodeUnits)
	}
	if p.Locations != nil && len(p.Locations) != len(p.Instructions) {
		return 0, errz.Newf(errz.ErrCorruptOffset,
			"unit has %d instructions but %d locations",
			len(p.Instructions), len(p.Locations))
	}
	for _, c := range p.Constants {
		if c < 0 || c >= len(b.objects) {
			return 0, errz.Newf(errz.ErrCorruptOffset,
				"constant references unregistered object %d", c)
		}
	}
	u := builderUnit{params: p}
	fi, ok := b.fileIdx[p.Filename]
	if !ok {
		fi = len(b.files)
		if fi > 255 {
			return 0, errz.New(errz.ErrCorruptOffset,
				"too many source files (max 256)")
		}
		b.files = append(b.files, p.Filename)
		b.fileIdx[p.Filename] = fi
	}
	u.fileIndex = fi
	if len(p.ExceptionTable) > 0 {
		u.excOff = b.addLenPrefixed(p.ExceptionTable)
		u.hasExc = true
	}
	// Intern up front so the string table is complete before layout.
	b.InternString(p.Name)
	for _, s := range p.VarNames {
		b.InternString(s)
	}
	for _, s := range p.Names {
		b.InternString(s)
	}
	b.units = append(b.units, u)
	return len(b.units) - 1, nil
}

func align(v, to uint32) uint32 {
	if rem := v % to; rem != 0 {
		return v + to - rem
	}
	return v
}

// recordSize returns the on-disk size of one code unit record, including the
// alignment padding after an odd-length instruction stream.
func recordSize(p UnitParams) uint32 {
	size := uint32(12 * 4)
	size += uint32(len(p.Instructions)) * 2
	size = align(size, 4)
	size += 4 + uint32(len(p.VarNames))*4
	size += 4 + uint32(len(p.Names))*4
	size += 4 + uint32(len(p.Constants))*4
	return size
}

// metaPool interns varint-length-prefixed strings in the metadata pool.
type metaPool struct {
	buf  []byte
	base uint32 // metadata-relative offset of the pool
	idx  map[string]uint32
}

func (p *metaPool) intern(s string) uint32 {
	if off, ok := p.idx[s]; ok {
		return off
	}
	off := p.base + uint32(len(p.buf))
	p.buf = varint.AppendUvarint(p.buf, uint64(len(s)))
	p.buf = append(p.buf, s...)
	p.idx[s] = off
	return off
}

// Bytes lays out and emits the container. The Builder must not be reused
// afterwards.
func (b *Builder) Bytes() ([]byte, error) {
	for i, obj := range b.objects {
		if err := checkMaker(obj); err != nil {
			return nil, errz.Newf(errz.ErrUnknownInstruction,
				"object %d: %s", i, err.Error()).WithCause(err)
		}
	}

	// Phase 1: compute section offsets.
	pos := uint32(codeOffsetsStart) + uint32(len(b.units))*4
	recordOffs := make([]uint32, len(b.units))
	for i, u := range b.units {
		recordOffs[i] = pos
		pos += recordSize(u.params)
	}

	objTable := pos
	pos += 4 + uint32(len(b.objects))*4
	objOffs := make([]uint32, len(b.objects))
	for i, obj := range b.objects {
		objOffs[i] = pos
		pos += align(4+uint32(len(obj))*2, 4)
	}

	strTable := pos
	pos += 4 + uint32(len(b.strings))*4

	blobStart := align(pos, 8)
	strOffs := make([]uint32, len(b.strings)) // blob-relative
	blob := b.blob
	for i, s := range b.strings {
		strOffs[i] = uint32(len(blob))
		blob = varint.AppendUvarint(blob, uint64(len(s)))
		blob = append(blob, s...)
	}
	blobSize := uint32(len(blob))

	metaStart := align(blobStart+blobSize, 4)

	// Phase 2: metadata layout. Location tables follow the file table; the
	// string pool trails.
	metaPos := uint32(4 + len(b.files)*4)
	locOffs := make([]uint32, len(b.units))
	locTables := make([][]byte, len(b.units))
	for i, u := range b.units {
		if u.params.Locations == nil {
			continue
		}
		enc, err := location.Encode(u.fileIndex, u.params.Definition, u.params.Locations)
		if err != nil {
			return nil, err
		}
		locOffs[i] = metaPos
		locTables[i] = enc
		metaPos += uint32(len(enc))
	}
	pool := &metaPool{base: metaPos, idx: map[string]uint32{}}
	fileOffs := make([]uint32, len(b.files))
	for i, name := range b.files {
		fileOffs[i] = pool.intern(name)
	}
	filenameOffs := make([]uint32, len(b.units))
	docstringOffs := make([]uint32, len(b.units))
	for i, u := range b.units {
		filenameOffs[i] = pool.intern(u.params.Filename)
		if u.params.Docstring != "" {
			docstringOffs[i] = pool.intern(u.params.Docstring)
		}
	}
	metaSize := metaPos + uint32(len(pool.buf))
	totalSize := metaStart + metaSize

	// Phase 3: emit.
	out := make([]byte, totalSize)
	le := binary.LittleEndian
	copy(out[offMagic:], Magic)
	le.PutUint16(out[offVersion:], Version)
	le.PutUint16(out[offCodeCount:], uint16(len(b.units)))
	le.PutUint32(out[offMetaStart:], metaStart)
	le.PutUint32(out[offTotalSize:], totalSize)
	le.PutUint32(out[offObjectTable:], objTable)
	le.PutUint32(out[offStringTable:], strTable)
	le.PutUint32(out[offBlobStart:], blobStart)
	le.PutUint32(out[offBlobSize:], blobSize)

	for i, off := range recordOffs {
		le.PutUint32(out[codeOffsetsStart+uint32(i)*4:], off)
	}
	for i, u := range b.units {
		b.emitRecord(out, recordOffs[i], u, blobStart,
			filenameOffs[i], locOffs[i], docstringOffs[i])
	}

	le.PutUint32(out[objTable:], uint32(len(b.objects)))
	for i, obj := range b.objects {
		le.PutUint32(out[objTable+4+uint32(i)*4:], objOffs[i])
		le.PutUint32(out[objOffs[i]:], uint32(len(obj)))
		for j, w := range obj {
			le.PutUint16(out[objOffs[i]+4+uint32(j)*2:], uint16(w))
		}
	}

	le.PutUint32(out[strTable:], uint32(len(b.strings)))
	for i := range b.strings {
		le.PutUint32(out[strTable+4+uint32(i)*4:], blobStart+strOffs[i])
	}

	copy(out[blobStart:], blob)

	le.PutUint32(out[metaStart:], uint32(len(b.files)))
	for i, off := range fileOffs {
		le.PutUint32(out[metaStart+4+uint32(i)*4:], off)
	}
	for i, enc := range locTables {
		if enc != nil {
			copy(out[metaStart+locOffs[i]:], enc)
		}
	}
	copy(out[metaStart+pool.base:], pool.buf)

	return out, nil
}

// emitRecord writes one code unit record at the given absolute offset.
func (b *Builder) emitRecord(out []byte, base uint32, u builderUnit,
	blobStart, filenameOff, locOff, docstringOff uint32) {

	le := binary.LittleEndian
	p := u.params
	pos := base
	put := func(v uint32) {
		le.PutUint32(out[pos:], v)
		pos += 4
	}
	put(p.Flags)
	put(p.ArgCount)
	put(p.PosOnlyArgCount)
	put(p.KwOnlyArgCount)
	put(p.NumLocals)
	put(p.StackSize)
	put(uint32(b.strIdx[p.Name]))
	if u.hasExc {
		put(blobStart + u.excOff)
	} else {
		put(0)
	}
	put(filenameOff)
	put(locOff)
	put(docstringOff)
	put(uint32(len(p.Instructions)))
	for _, w := range p.Instructions {
		le.PutUint16(out[pos:], uint16(w))
		pos += 2
	}
	pos = align(pos, 4)
	put(uint32(len(p.VarNames)))
	for _, s := range p.VarNames {
		put(uint32(b.strIdx[s]))
	}
	put(uint32(len(p.Names)))
	for _, s := range p.Names {
		put(uint32(b.strIdx[s]))
	}
	put(uint32(len(p.Constants)))
	for _, c := range p.Constants {
		put(uint32(c))
	}
}

// checkMaker validates the instruction structure of a maker program: every
// opcode recognized, operands present, and a RETURN_CONSTANT terminator.
func checkMaker(code []op.Code) error {
	if len(code) == 0 {
		return errz.New(errz.ErrUnknownInstruction, "empty maker program")
	}
	i := 0
	sawReturn := false
	for i < len(code) {
		info := op.GetInfo(code[i])
		if info.Name == "" {
			return errz.Newf(errz.ErrUnknownInstruction,
				"unrecognized opcode %d at word %d", code[i], i)
		}
		if i+1+info.OperandCount > len(code) {
			return errz.Newf(errz.ErrUnknownInstruction,
				"opcode %s at word %d is missing operands", info.Name, i)
		}
		if code[i] == op.ReturnConstant {
			sawReturn = true
		}
		i += 1 + info.OperandCount
	}
	if !sawReturn {
		return errz.New(errz.ErrUnknownInstruction,
			"maker program has no RETURN_CONSTANT")
	}
	return nil
}
