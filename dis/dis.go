// Package dis supports analysis of container code by disassembling it. It
// works with the opcodes defined in the `op` package and reads operand
// targets (strings, blob values, nested units) out of the loaded file so the
// printed listing shows resolved values, not just raw indexes.
package dis

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"

	"github.com/fatih/color"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/format"
	"github.com/cloudcmds/lazybin/internal/table"
	"github.com/cloudcmds/lazybin/op"
	"github.com/cloudcmds/lazybin/varint"
)

// Instruction represents a single decoded instruction and its operands.
type Instruction struct {
	Offset     int
	Name       string
	Opcode     op.Code
	Operands   []uint16
	Annotation string
	Constant   any
}

// Object disassembles the maker program at the given object-table index.
func Object(f *format.File, index int) ([]Instruction, error) {
	words, err := f.ObjectCode(index)
	if err != nil {
		return nil, err
	}
	return Disassemble(f, words)
}

// Unit disassembles the instruction stream of the given code unit.
func Unit(f *format.File, index int) ([]Instruction, error) {
	rec, err := f.Record(index)
	if err != nil {
		return nil, err
	}
	return Disassemble(f, rec.Instructions())
}

// Disassemble returns a parsed representation of the given instruction
// words. The file provides the lookup context for operand annotations.
func Disassemble(f *format.File, words format.Words) ([]Instruction, error) {
	var instructions []Instruction
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
		operands := make([]uint16, info.OperandCount)
		for i := range operands {
			operands[i] = words.Operand(ip + 1 + i)
		}

		var constant any
		var annotation string
		var err error
		switch opcode {
		case op.MakeInt:
			v := int64(operands[0] >> 1)
			if operands[0]&1 != 0 {
				v = -v
			}
			constant = v
		case op.MakeString:
			constant, err = f.StringAt(int(operands[0]))
		case op.MakeFloat:
			var raw []byte
			raw, err = f.Blob(op.JoinU32(op.Code(operands[0]), op.Code(operands[1])), 8)
			if err == nil {
				constant = math.Float64frombits(binary.LittleEndian.Uint64(raw))
			}
		case op.MakeBigInt:
			constant, err = readBigInt(f, op.JoinU32(op.Code(operands[0]), op.Code(operands[1])))
		case op.MakeCode:
			var name string
			name, err = unitName(f, int(operands[0]))
			annotation = fmt.Sprintf("unit:%s", name)
		case op.LoadSingleton:
			switch operands[0] {
			case op.SingletonNil:
				annotation = "nil"
			case op.SingletonFalse:
				annotation = "false"
			case op.SingletonTrue:
				annotation = "true"
			}
		case op.LazyLookup:
			annotation = fmt.Sprintf("slot %d", operands[0])
		}
		if err != nil {
			return nil, err
		}

		instructions = append(instructions, Instruction{
			Offset:     ip,
			Name:       info.Name,
			Opcode:     opcode,
			Operands:   operands,
			Annotation: annotation,
			Constant:   constant,
		})
		ip += 1 + info.OperandCount
	}
	return instructions, nil
}

// Print writes a string representation of the given instructions.
func Print(instructions []Instruction, writer io.Writer) {
	bold := color.New(color.Bold)
	var lines [][]string
	for _, instr := range instructions {
		var values []string
		values = append(values, fmt.Sprintf("%d", instr.Offset))
		values = append(values, bold.Sprint(instr.Name))
		values = append(values, formatOperands(instr.Operands))
		if instr.Constant != nil {
			switch c := instr.Constant.(type) {
			case int64:
				values = append(values, color.YellowString("%d", c))
			case float64:
				values = append(values, color.YellowString("%g", c))
			case *big.Int:
				values = append(values, color.YellowString("%s", c.String()))
			case string:
				if len(c) > 80 {
					c = c[:77] + "..."
				}
				values = append(values, color.GreenString("%q", c))
			default:
				values = append(values, bold.Sprintf("%v", c))
			}
		} else if instr.Annotation != "" {
			values = append(values, color.HiCyanString("%s", instr.Annotation))
		} else {
			values = append(values, "")
		}
		lines = append(lines, values)
	}

	table.NewTable(writer).
		WithHeader([]string{"OFFSET", "OPCODE", "OPERANDS", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignRight,
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(lines).
		Render()
}

func formatOperands(operands []uint16) string {
	var sb strings.Builder
	for i, o := range operands {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", o))
	}
	return sb.String()
}

func unitName(f *format.File, index int) (string, error) {
	rec, err := f.Record(index)
	if err != nil {
		return "", err
	}
	return rec.Name()
}

func readBigInt(f *format.File, off uint32) (*big.Int, error) {
	buf, err := f.BlobFrom(off)
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
	for i := range mag {
		mag[i] = buf[consumed+int(n)-1-i]
	}
	v := new(big.Int).SetBytes(mag)
	if neg {
		v.Neg(v)
	}
	return v, nil
}
