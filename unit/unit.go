// Package unit provides the runtime-facing view over one compiled code unit:
// its instruction stream, its shared constants/names slot array, and its
// source locations. Constants are not decoded at load time; each slot is
// materialized by running its maker program on first lookup and cached for
// the lifetime of the Unit instance.
package unit

import (
	"sync"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/format"
	"github.com/cloudcmds/lazybin/location"
)

// BuildObserver receives a callback after each successful slot construction.
// Used by tests and tooling to observe maker-program work.
type BuildObserver func(unitIndex, slot int)

// Position is a resolved source location.
type Position struct {
	Line     int
	Column   int
	Filename string
}

// Unit is the runtime view over one code unit. The underlying container
// bytes are shared and never copied; the slot array is owned by the Unit and
// starts empty on every load. A Unit is safe for concurrent use.
type Unit struct {
	file     *format.File
	rec      *format.CodeRecord
	index    int
	observer BuildObserver

	mu    sync.Mutex
	slots []slot

	locOnce sync.Once
	loc     *location.Table
	locErr  error
}

// Option configures a Unit.
type Option func(*Unit)

// WithBuildObserver attaches a callback invoked after each slot build. The
// observer propagates to nested units.
func WithBuildObserver(obs BuildObserver) Option {
	return func(u *Unit) {
		u.observer = obs
	}
}

// Load creates a Unit over code unit index in the given container. Every
// call returns an independent instance with all slots empty; caching is
// per-instance, never per-file.
func Load(f *format.File, index int, opts ...Option) (*Unit, error) {
	rec, err := f.Record(index)
	if err != nil {
		return nil, err
	}
	u := &Unit{
		file:  f,
		rec:   rec,
		index: index,
		slots: make([]slot, rec.SlotCount()),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Index returns the unit's position in the container's code table.
func (u *Unit) Index() int {
	return u.index
}

// Record returns the unit's parsed on-disk record.
func (u *Unit) Record() *format.CodeRecord {
	return u.rec
}

// Name materializes the unit's name.
func (u *Unit) Name() (string, error) {
	return u.rec.Name()
}

// Instructions returns the unit's instruction stream as a read-only view.
func (u *Unit) Instructions() format.Words {
	return u.rec.Instructions()
}

// SlotCount returns the length of the shared constants/names array.
func (u *Unit) SlotCount() int {
	return len(u.slots)
}

// NameSlotCount returns the number of name slots, which occupy the low end
// of the shared array.
func (u *Unit) NameSlotCount() int {
	return u.rec.NameSlotCount()
}

// ConstSlotCount returns the number of constant slots, which occupy the high
// end of the shared array.
func (u *Unit) ConstSlotCount() int {
	return u.rec.ConstSlotCount()
}

// NamePosition maps a name index to its position in the shared array.
func (u *Unit) NamePosition(i int) int {
	return i
}

// ConstantPosition maps a constant index to its position in the shared array.
func (u *Unit) ConstantPosition(i int) int {
	return u.rec.NameSlotCount() + i
}

// ResolveName resolves name slot i, materializing it on first use.
func (u *Unit) ResolveName(i int) (string, error) {
	if i < 0 || i >= u.rec.NameSlotCount() {
		return "", errz.Newf(errz.ErrCorruptOffset,
			"name index %d out of range [0,%d)", i, u.rec.NameSlotCount())
	}
	v, err := u.Resolve(u.NamePosition(i))
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ResolveConstant resolves constant slot i, running its maker program on
// first use.
func (u *Unit) ResolveConstant(i int) (any, error) {
	if i < 0 || i >= u.rec.ConstSlotCount() {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"constant index %d out of range [0,%d)", i, u.rec.ConstSlotCount())
	}
	return u.Resolve(u.ConstantPosition(i))
}

// NestedUnit returns a view over another code unit in the same container.
// The returned Unit shares the container bytes but owns a fresh, all-empty
// slot array.
func (u *Unit) NestedUnit(index int) (*Unit, error) {
	opts := []Option{}
	if u.observer != nil {
		opts = append(opts, WithBuildObserver(u.observer))
	}
	return Load(u.file, index, opts...)
}

// table parses the unit's location table on first use.
func (u *Unit) table() (*location.Table, error) {
	u.locOnce.Do(func() {
		data, err := u.rec.LocationData()
		if err != nil {
			u.locErr = err
			return
		}
		u.loc, u.locErr = location.Parse(data, u.rec.Instructions().Len())
	})
	return u.loc, u.locErr
}

// Location returns the source position of the instruction at the given
// index.
func (u *Unit) Location(instructionIndex int) (Position, error) {
	t, err := u.table()
	if err != nil {
		return Position{}, err
	}
	pos, err := t.Lookup(instructionIndex)
	if err != nil {
		return Position{}, err
	}
	return u.position(pos)
}

// Definition returns the unit's own declaration location, stored as entry 0
// of its location table.
func (u *Unit) Definition() (Position, error) {
	t, err := u.table()
	if err != nil {
		return Position{}, err
	}
	pos, err := t.Definition()
	if err != nil {
		return Position{}, err
	}
	return u.position(pos)
}

func (u *Unit) position(pos location.Position) (Position, error) {
	name, err := u.file.Metadata().FileName(pos.FileIndex)
	if err != nil {
		return Position{}, err
	}
	return Position{Line: pos.Line, Column: pos.Column, Filename: name}, nil
}
