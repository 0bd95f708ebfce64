package unit

import "github.com/cloudcmds/lazybin/errz"

// SlotState describes one cell of the shared constants/names array.
type SlotState uint8

const (
	// Empty means the slot has not been built yet.
	Empty SlotState = iota
	// Building marks a slot whose maker program is currently running. The
	// marker doubles as the guard against re-entrant self-construction.
	Building
	// Built means the slot holds its cached value.
	Built
)

// String returns the string representation of the slot state.
func (s SlotState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Building:
		return "building"
	case Built:
		return "built"
	default:
		return "invalid"
	}
}

type slot struct {
	state SlotState
	value any
	done  chan struct{} // closed when a Building slot settles
}

// State returns the current state of the slot at the given position.
func (u *Unit) State(pos int) SlotState {
	u.mu.Lock()
	defer u.mu.Unlock()
	if pos < 0 || pos >= len(u.slots) {
		return Empty
	}
	return u.slots[pos].state
}

// Resolve returns the value of the slot at the given position in the shared
// array, building it on first use. Name positions materialize from the
// string table; constant positions run their maker program. The first
// successful build is cached for the lifetime of the Unit.
func (u *Unit) Resolve(pos int) (any, error) {
	return u.resolve(pos, nil)
}

// resolve implements the per-slot state machine. The visiting set carries
// the slots under construction in the current build chain, so a maker
// program that looks up its own slot is detected as a cycle rather than
// recursing forever. Builds by other goroutines are waited on via the
// slot's done channel, giving per-slot exclusion without serializing
// unrelated constants.
func (u *Unit) resolve(pos int, visiting map[int]struct{}) (any, error) {
	if pos < 0 || pos >= len(u.slots) {
		return nil, errz.Newf(errz.ErrCorruptOffset,
			"slot position %d out of range [0,%d)", pos, len(u.slots))
	}
	for {
		u.mu.Lock()
		s := &u.slots[pos]
		switch s.state {
		case Built:
			v := s.value
			u.mu.Unlock()
			return v, nil

		case Building:
			if _, ok := visiting[pos]; ok {
				u.mu.Unlock()
				return nil, errz.Newf(errz.ErrCyclicConstant,
					"slot %d references itself during construction", pos)
			}
			done := s.done
			u.mu.Unlock()
			<-done
			// Re-check: the other builder finished or failed.
			continue

		default: // Empty
			s.state = Building
			s.done = make(chan struct{})
			done := s.done
			u.mu.Unlock()

			if visiting == nil {
				visiting = make(map[int]struct{})
			}
			visiting[pos] = struct{}{}
			v, err := u.build(pos, visiting)
			delete(visiting, pos)

			u.mu.Lock()
			s = &u.slots[pos]
			if err != nil {
				// A failed build leaves the slot empty; other slots keep
				// whatever state they reached.
				s.state = Empty
				s.value = nil
			} else {
				s.state = Built
				s.value = v
			}
			s.done = nil
			u.mu.Unlock()
			close(done)

			if err != nil {
				return nil, err
			}
			if u.observer != nil {
				u.observer(u.index, pos)
			}
			return v, nil
		}
	}
}

// build constructs the value for a slot. Names come straight from the string
// table; constants run their maker program against the container's binary
// data.
func (u *Unit) build(pos int, visiting map[int]struct{}) (any, error) {
	nameCount := u.rec.NameSlotCount()
	if pos < nameCount {
		idx, err := u.rec.NameStringIndex(pos)
		if err != nil {
			return nil, err
		}
		return u.file.StringAt(int(idx))
	}
	objIdx, err := u.rec.ConstObjectIndex(pos - nameCount)
	if err != nil {
		return nil, err
	}
	words, err := u.file.ObjectCode(int(objIdx))
	if err != nil {
		return nil, err
	}
	return u.runMaker(words, visiting)
}
