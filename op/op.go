// Package op defines the opcodes recognized by the lazy constant engine and
// the container loader. Maker opcodes construct constant values, the slot
// protocol opcodes drive lazy materialization, and a small ordinary subset is
// recognized so code units can be validated and disassembled.
package op

// Code is an integer opcode that indicates an operation to execute. Opcodes
// and their operands occupy one 16-bit instruction word each.
type Code uint16

const (
	Invalid Code = 0

	// Maker value construction
	MakeInt       Code = 1 // Small integer from a sign-mapped immediate
	MakeString    Code = 2 // String from a string-table index
	MakeBigInt    Code = 3 // Arbitrary-precision integer from binary data
	MakeFloat     Code = 4 // Float from 8 bytes of binary data
	MakeComplex   Code = 5 // Complex from two floats on the stack
	MakeCode      Code = 6 // Reference to a declared code unit by index
	LoadSingleton Code = 7 // One of the shared singleton values
	BuildTuple    Code = 8 // Tuple from the top N stack values

	// Slot protocol
	LazyLookup     Code = 10 // Return a cached slot value or build it
	ReturnConstant Code = 11 // Store TOS into the declared slot and finish

	// Ordinary subset
	Nop         Code = 20
	Halt        Code = 21
	ReturnValue Code = 22
	PopTop      Code = 23
)

// Singleton identifiers used as the operand of LoadSingleton.
const (
	SingletonNil   uint16 = 0
	SingletonFalse uint16 = 1
	SingletonTrue  uint16 = 2
)

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{MakeInt, "MAKE_INT", 1},
		{MakeString, "MAKE_STRING", 1},
		{MakeBigInt, "MAKE_BIGINT", 2},
		{MakeFloat, "MAKE_FLOAT", 2},
		{MakeComplex, "MAKE_COMPLEX", 0},
		{MakeCode, "MAKE_CODE", 1},
		{LoadSingleton, "LOAD_SINGLETON", 1},
		{BuildTuple, "BUILD_TUPLE", 1},
		{LazyLookup, "LAZY_LOOKUP", 1},
		{ReturnConstant, "RETURN_CONSTANT", 1},
		{Nop, "NOP", 0},
		{Halt, "HALT", 0},
		{ReturnValue, "RETURN_VALUE", 0},
		{PopTop, "POP_TOP", 0},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
		}
	}
}

// GetInfo returns information about the given opcode. The zero Info is
// returned for unrecognized opcodes.
func GetInfo(op Code) Info {
	if int(op) >= len(infos) {
		return Info{}
	}
	return infos[op]
}

// IsValid reports whether the opcode is part of the recognized set.
func IsValid(op Code) bool {
	return op != Invalid && int(op) < len(infos) && infos[op].Name != ""
}
