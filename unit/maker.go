package unit

import (
	"encoding/binary"
	"math"
	"math/big"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/format"
	"github.com/cloudcmds/lazybin/op"
	"github.com/cloudcmds/lazybin/varint"
)

// maxMakerStack bounds the operand stack of a maker program. Constant
// construction is shallow; hitting the bound means the program is malformed.
const maxMakerStack = 256

// runMaker interprets one maker program and returns the value it produces.
// Execution is an ordinary function call: the engine runs the program with
// its own operand stack and returns at RETURN_CONSTANT, rather than jumping
// within the caller's instruction stream.
func (u *Unit) runMaker(words format.Words, visiting map[int]struct{}) (any, error) {
	var stack []any

	push := func(v any) error {
		if len(stack) >= maxMakerStack {
			return errz.New(errz.ErrCorruptOffset, "maker program stack overflow")
		}
		stack = append(stack, v)
		return nil
	}
	pop := func() (any, error) {
		if len(stack) == 0 {
			return nil, errz.New(errz.ErrCorruptOffset, "maker program stack underflow")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for ip := 0; ip < words.Len(); {
		opcode := words.At(ip)
		info := op.GetInfo(opcode)
		if info.Name == "" {
			return nil, errz.Newf(errz.ErrUnknownInstruction,
				"opcode %d at word %d", opcode, ip)
		}
		if ip+1+info.OperandCount > words.Len() {
			return nil, errz.Newf(errz.ErrCorruptOffset,
				"opcode %s at word %d is missing operands", info.Name, ip)
		}

		switch opcode {
		case op.MakeInt:
			imm := words.Operand(ip + 1)
			v := int64(imm >> 1)
			if imm&1 != 0 {
				v = -v
			}
			if err := push(v); err != nil {
				return nil, err
			}

		case op.MakeString:
			s, err := u.file.StringAt(int(words.Operand(ip + 1)))
			if err != nil {
				return nil, err
			}
			if err := push(s); err != nil {
				return nil, err
			}

		case op.MakeBigInt:
			off := op.JoinU32(words.At(ip+1), words.At(ip+2))
			v, err := u.decodeBigInt(off)
			if err != nil {
				return nil, err
			}
			if err := push(v); err != nil {
				return nil, err
			}

		case op.MakeFloat:
			off := op.JoinU32(words.At(ip+1), words.At(ip+2))
			raw, err := u.file.Blob(off, 8)
			if err != nil {
				return nil, err
			}
			v := math.Float64frombits(binary.LittleEndian.Uint64(raw))
			if err := push(v); err != nil {
				return nil, err
			}

		case op.MakeComplex:
			im, err := popFloat(pop)
			if err != nil {
				return nil, err
			}
			re, err := popFloat(pop)
			if err != nil {
				return nil, err
			}
			if err := push(complex(re, im)); err != nil {
				return nil, err
			}

		case op.MakeCode:
			nested, err := u.NestedUnit(int(words.Operand(ip + 1)))
			if err != nil {
				return nil, err
			}
			if err := push(nested); err != nil {
				return nil, err
			}

		case op.LoadSingleton:
			var v any
			switch words.Operand(ip + 1) {
			case op.SingletonNil:
				v = nil
			case op.SingletonFalse:
				v = false
			case op.SingletonTrue:
				v = true
			default:
				return nil, errz.Newf(errz.ErrUnknownInstruction,
					"unknown singleton %d", words.Operand(ip+1))
			}
			if err := push(v); err != nil {
				return nil, err
			}

		case op.BuildTuple:
			n := int(words.Operand(ip + 1))
			if n > len(stack) {
				return nil, errz.Newf(errz.ErrCorruptOffset,
					"BUILD_TUPLE %d with %d stack values", n, len(stack))
			}
			t := make(Tuple, n)
			copy(t, stack[len(stack)-n:])
			stack = stack[:len(stack)-n]
			if err := push(t); err != nil {
				return nil, err
			}

		case op.LazyLookup:
			v, err := u.resolve(int(words.Operand(ip+1)), visiting)
			if err != nil {
				return nil, err
			}
			if err := push(v); err != nil {
				return nil, err
			}

		case op.ReturnConstant:
			// The operand names the slot the program was declared for; the
			// engine already knows the triggering slot, so the operand is
			// informational and the result is simply returned to the caller.
			return pop()

		default:
			return nil, errz.Newf(errz.ErrUnknownInstruction,
				"opcode %s is not valid in a maker program", info.Name)
		}
		ip += 1 + info.OperandCount
	}
	return nil, errz.New(errz.ErrCorruptOffset,
		"maker program ended without RETURN_CONSTANT")
}

// popFloat pops a value and requires it to be a float64.
func popFloat(pop func() (any, error)) (float64, error) {
	v, err := pop()
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, errz.Newf(errz.ErrCorruptOffset,
			"MAKE_COMPLEX operand is %T, not float64", v)
	}
	return f, nil
}

// decodeBigInt reads an arbitrary-precision integer from the binary-data
// section: a signed varint byte count, whose sign carries the value's sign,
// followed by little-endian magnitude bytes.
func (u *Unit) decodeBigInt(off uint32) (*big.Int, error) {
	buf, err := u.file.BlobFrom(off)
	if err != nil {
		return nil, err
	}
	n, consumed, err := varint.Varint(buf)
	if err != nil {
		return nil, err
	}
	neg := n < 0
	if neg {
		n = -n
	}
	if n > int64(len(buf)-consumed) {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"big integer of %d bytes extends past section end", n)
	}
	mag := make([]byte, n)
	// Stored little-endian; big.Int wants big-endian.
	for i := range mag {
		mag[i] = buf[consumed+int(n)-1-i]
	}
	v := new(big.Int).SetBytes(mag)
	if neg {
		v.Neg(v)
	}
	return v, nil
}
