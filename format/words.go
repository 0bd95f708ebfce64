package format

import (
	"encoding/binary"

	"github.com/cloudcmds/lazybin/op"
)

// Words is a read-only view over a run of 16-bit instruction words in the
// mapped bytes. It decodes words on access and never copies the underlying
// region.
type Words struct {
	data []byte
}

// NewWords wraps raw little-endian instruction bytes. The byte length must be
// even; odd trailing bytes are ignored.
func NewWords(data []byte) Words {
	return Words{data: data[:len(data)&^1]}
}

// Len returns the number of instruction words.
func (w Words) Len() int {
	return len(w.data) / 2
}

// At returns the instruction word at the given index. The index must be in
// range [0, Len).
func (w Words) At(i int) op.Code {
	return op.Code(binary.LittleEndian.Uint16(w.data[i*2:]))
}

// Operand returns the word at the given index as a plain operand value.
func (w Words) Operand(i int) uint16 {
	return binary.LittleEndian.Uint16(w.data[i*2:])
}
