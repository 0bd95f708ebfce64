package location

import (
	"encoding/binary"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/varint"
)

// Encode produces the section run for one code unit. The definition location
// becomes entry 0 and each instruction entry follows in order. All sections
// are exactly SectionSize bytes except possibly the last, which is padded to
// a 4-byte boundary.
func Encode(fileIndex int, def Entry, entries []Entry) ([]byte, error) {
	if fileIndex < 0 || fileIndex > 255 {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"file index %d does not fit in one byte", fileIndex)
	}
	all := make([]Entry, 0, len(entries)+1)
	all = append(all, def)
	all = append(all, entries...)
	for _, e := range all {
		if e.Line < 0 || e.Column < 0 {
			return nil, errz.Newf(errz.ErrCorruptOffset,
				"negative location %d:%d", e.Line, e.Column)
		}
	}

	var out []byte
	i := 0
	for i < len(all) {
		base := all[i].Line
		firstEntry := i

		// Pack as many entries as fit in one section.
		var stream []byte
		prevLine := base
		count := 0
		for i < len(all) && count < maxSectionEntries {
			delta := all[i].Line - prevLine
			need := varint.VarintLen(int64(delta)) + varint.UvarintLen(uint64(all[i].Column))
			if sectionHeaderSize+len(stream)+need > SectionSize {
				break
			}
			stream = varint.AppendVarint(stream, int64(delta))
			stream = varint.AppendUvarint(stream, uint64(all[i].Column))
			prevLine = all[i].Line
			count++
			i++
		}

		instrOffset := 0
		if firstEntry > 0 {
			instrOffset = firstEntry - 1
		}
		var header [sectionHeaderSize]byte
		binary.LittleEndian.PutUint32(header[0:], uint32(base))
		binary.LittleEndian.PutUint32(header[4:], uint32(instrOffset))
		header[8] = byte(fileIndex)
		header[9] = byte(count)
		out = append(out, header[:]...)
		out = append(out, stream...)

		if i < len(all) {
			// Interior sections are padded out to the fixed size.
			for len(out)%SectionSize != 0 {
				out = append(out, 0)
			}
		}
	}

	// The run must stay 4-byte aligned for whatever follows it.
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out, nil
}
