package format

import (
	"github.com/hashicorp/go-multierror"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/location"
	"github.com/cloudcmds/lazybin/op"
)

// Verify walks the entire container eagerly and reports every problem it can
// find, aggregated into one error. The steady-state read path never does
// this; Verify exists for build pipelines and tooling that want to audit a
// file up front instead of hitting corruption lazily at first use.
func (f *File) Verify() error {
	var result *multierror.Error

	count, err := f.StringCount()
	if err != nil {
		result = multierror.Append(result, err)
	} else {
		for i := 0; i < count; i++ {
			if _, err := f.StringAt(i); err != nil {
				result = multierror.Append(result, err)
			}
		}
		f.logger.Debug().Int("strings", count).Msg("string table verified")
	}

	objCount, err := f.ObjectCount()
	if err != nil {
		result = multierror.Append(result, err)
		objCount = 0
	}
	for i := 0; i < objCount; i++ {
		if err := f.verifyObject(i); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for i := 0; i < f.meta.FileCount(); i++ {
		if _, err := f.meta.FileName(i); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for i := 0; i < f.codeCount; i++ {
		if err := f.verifyRecord(i, objCount); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if result != nil {
		f.logger.Debug().Int("problems", result.Len()).Msg("verification failed")
		return result.ErrorOrNil()
	}
	f.logger.Debug().Int("code_units", f.codeCount).Msg("container verified")
	return nil
}

// verifyObject checks one maker program's instruction structure and its
// string-table operands.
func (f *File) verifyObject(i int) error {
	words, err := f.ObjectCode(i)
	if err != nil {
		return err
	}
	code := make([]op.Code, words.Len())
	for j := range code {
		code[j] = words.At(j)
	}
	if err := checkMaker(code); err != nil {
		return errz.Newf(errz.ErrUnknownInstruction,
			"object %d: %s", i, err.Error()).WithCause(err)
	}
	strCount, err := f.StringCount()
	if err != nil {
		return err
	}
	for j := 0; j < len(code); j += 1 + op.GetInfo(code[j]).OperandCount {
		if code[j] == op.MakeString && int(code[j+1]) >= strCount {
			return errz.Newf(errz.ErrCorruptOffset,
				"object %d references string %d of %d", i, code[j+1], strCount)
		}
	}
	return nil
}

// verifyRecord checks one code unit record: index resolution, instruction
// stream opcodes, and the location table's entry count.
func (f *File) verifyRecord(i, objCount int) error {
	rec, err := f.Record(i)
	if err != nil {
		return err
	}
	if _, err := rec.Name(); err != nil {
		return err
	}
	if _, err := rec.Filename(); err != nil {
		return err
	}
	if _, _, err := rec.Docstring(); err != nil {
		return err
	}
	if _, err := rec.ExceptionTableData(); err != nil {
		return err
	}
	for j := 0; j < rec.VarNameCount(); j++ {
		if _, err := rec.VarName(j); err != nil {
			return err
		}
	}
	for j := 0; j < rec.NameSlotCount(); j++ {
		idx, err := rec.NameStringIndex(j)
		if err != nil {
			return err
		}
		if _, err := f.StringAt(int(idx)); err != nil {
			return err
		}
	}
	for j := 0; j < rec.ConstSlotCount(); j++ {
		idx, err := rec.ConstObjectIndex(j)
		if err != nil {
			return err
		}
		if int(idx) >= objCount {
			return errz.Newf(errz.ErrCorruptOffset,
				"unit %d constant %d references object %d of %d",
				i, j, idx, objCount)
		}
	}

	words := rec.Instructions()
	for j := 0; j < words.Len(); {
		info := op.GetInfo(words.At(j))
		if info.Name == "" {
			return errz.Newf(errz.ErrUnknownInstruction,
				"unit %d: unrecognized opcode %d at word %d", i, words.At(j), j)
		}
		j += 1 + info.OperandCount
	}

	if off := rec.LocationOffset(); off != 0 {
		data, err := rec.LocationData()
		if err != nil {
			return err
		}
		if _, err := location.Parse(data, words.Len()); err != nil {
			return errz.Newf(errz.ErrCorruptOffset,
				"unit %d: %s", i, err.Error()).WithCause(err)
		}
	}
	return nil
}
