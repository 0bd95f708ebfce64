// Package lazybin loads compact containers of compiled code objects. The
// container keeps constants in encoded form; each is materialized by running
// its maker program on first lookup. Subpackages hold the pieces: format
// reads the on-disk layout, unit drives lazy constant resolution, location
// decodes source positions, and dis disassembles instruction streams.
package lazybin

import (
	"os"

	"github.com/cloudcmds/lazybin/format"
	"github.com/cloudcmds/lazybin/unit"
)

// Load parses a container from an in-memory byte region, typically a
// read-only memory mapping. The region is retained, not copied.
func Load(data []byte, opts ...format.Option) (*format.File, error) {
	return format.Load(data, opts...)
}

// Open reads a container file from disk and parses it.
func Open(path string, opts ...format.Option) (*format.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return format.Load(data, opts...)
}

// Entry returns a runtime view over the container's first code unit, which
// by convention is the program entry point.
func Entry(f *format.File, opts ...unit.Option) (*unit.Unit, error) {
	return unit.Load(f, 0, opts...)
}
