package op

// SplitU32 splits a 32-bit operand value into the two instruction words used
// by opcodes that address binary data, high word first.
func SplitU32(v uint32) (hi, lo Code) {
	return Code(v >> 16), Code(v & 0xffff)
}

// JoinU32 reassembles a 32-bit operand value from its two instruction words.
func JoinU32(hi, lo Code) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}
