package unit

import (
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/lazybin/errz"
	"github.com/cloudcmds/lazybin/format"
	"github.com/cloudcmds/lazybin/location"
	"github.com/cloudcmds/lazybin/op"
)

// load builds a container and loads unit 0 with a build counter attached.
func load(t *testing.T, build func(b *format.Builder), opts ...Option) *Unit {
	t.Helper()
	b := format.NewBuilder()
	build(b)
	data, err := b.Bytes()
	require.NoError(t, err)
	f, err := format.Load(data)
	require.NoError(t, err)
	u, err := Load(f, 0, opts...)
	require.NoError(t, err)
	return u
}

// intImm encodes a small signed value as a MAKE_INT operand.
func intImm(v int) op.Code {
	if v < 0 {
		return op.Code(uint16(-v)<<1 | 1)
	}
	return op.Code(uint16(v) << 1)
}

func TestEndToEndTupleScenario(t *testing.T) {
	// Slot 0 builds (1, "Hi"); building it triggers slot 1, which builds
	// "Hi" from the string table.
	u := load(t, func(b *format.Builder) {
		hi := b.InternString("Hi")
		slot1 := b.AddObject([]op.Code{
			op.MakeString, op.Code(hi),
			op.ReturnConstant, 1,
		})
		slot0 := b.AddObject([]op.Code{
			op.MakeInt, intImm(1),
			op.LazyLookup, 1,
			op.BuildTuple, 2,
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "hi.py",
			Instructions: []op.Code{op.LazyLookup, 0, op.ReturnValue},
			Constants:    []int{slot0, slot1},
		})
		require.NoError(t, err)
	})

	require.Equal(t, 2, u.SlotCount())
	assert.Equal(t, Empty, u.State(0))
	assert.Equal(t, Empty, u.State(1))

	v, err := u.ResolveConstant(0)
	require.NoError(t, err)
	tuple, ok := v.(Tuple)
	require.True(t, ok, "expected Tuple, got %T", v)
	require.Equal(t, 2, tuple.Len())
	assert.Equal(t, int64(1), tuple.At(0))
	assert.Equal(t, "Hi", tuple.At(1))

	// Both slots settled as a side effect of one resolution.
	assert.Equal(t, Built, u.State(0))
	assert.Equal(t, Built, u.State(1))

	// Slot 1 remains independently resolvable.
	v, err = u.ResolveConstant(1)
	require.NoError(t, err)
	assert.Equal(t, "Hi", v)
}

func TestResolveIsIdempotent(t *testing.T) {
	var mu sync.Mutex
	counts := map[int]int{}
	u := load(t, func(b *format.Builder) {
		hi := b.InternString("hello")
		obj := b.AddObject([]op.Code{
			op.MakeString, op.Code(hi),
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.LazyLookup, 0, op.ReturnValue},
			Constants:    []int{obj},
		})
		require.NoError(t, err)
	}, WithBuildObserver(func(unitIndex, pos int) {
		mu.Lock()
		counts[pos]++
		mu.Unlock()
	}))

	first, err := u.ResolveConstant(0)
	require.NoError(t, err)
	second, err := u.ResolveConstant(0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, counts[0], "maker program must run exactly once")
}

func TestCyclicConstantDetected(t *testing.T) {
	u := load(t, func(b *format.Builder) {
		hi := b.InternString("ok")
		selfRef := b.AddObject([]op.Code{
			op.LazyLookup, 0, // its own slot
			op.ReturnConstant, 0,
		})
		fine := b.AddObject([]op.Code{
			op.MakeString, op.Code(hi),
			op.ReturnConstant, 1,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.LazyLookup, 0, op.ReturnValue},
			Constants:    []int{selfRef, fine},
		})
		require.NoError(t, err)
	})

	_, err := u.ResolveConstant(0)
	require.Error(t, err)
	assert.True(t, errz.IsKind(err, errz.ErrCyclicConstant))

	// The failed slot is left empty and other slots are unaffected.
	assert.Equal(t, Empty, u.State(0))
	v, err := u.ResolveConstant(1)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, Built, u.State(1))
}

func TestIndirectCycleDetected(t *testing.T) {
	u := load(t, func(b *format.Builder) {
		a := b.AddObject([]op.Code{
			op.LazyLookup, 1,
			op.ReturnConstant, 0,
		})
		c := b.AddObject([]op.Code{
			op.LazyLookup, 0,
			op.ReturnConstant, 1,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.ReturnValue},
			Constants:    []int{a, c},
		})
		require.NoError(t, err)
	})

	_, err := u.ResolveConstant(0)
	require.Error(t, err)
	assert.True(t, errz.IsKind(err, errz.ErrCyclicConstant))
}

func TestSharedArrayAddressing(t *testing.T) {
	u := load(t, func(b *format.Builder) {
		s := b.InternString("const-0")
		obj := b.AddObject([]op.Code{
			op.MakeString, op.Code(s),
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.ReturnValue},
			Names:        []string{"alpha", "beta"},
			Constants:    []int{obj},
		})
		require.NoError(t, err)
	})

	require.Equal(t, 2, u.NameSlotCount())
	require.Equal(t, 1, u.ConstSlotCount())
	require.Equal(t, 3, u.SlotCount())

	// Name index 0 and constant index 0 must land on disjoint positions.
	assert.Equal(t, 0, u.NamePosition(0))
	assert.Equal(t, 1, u.NamePosition(1))
	assert.Equal(t, 2, u.ConstantPosition(0))

	name, err := u.ResolveName(0)
	require.NoError(t, err)
	assert.Equal(t, "alpha", name)
	name, err = u.ResolveName(1)
	require.NoError(t, err)
	assert.Equal(t, "beta", name)
	v, err := u.ResolveConstant(0)
	require.NoError(t, err)
	assert.Equal(t, "const-0", v)

	assert.Equal(t, Built, u.State(0))
	assert.Equal(t, Built, u.State(1))
	assert.Equal(t, Built, u.State(2))
}

func TestMakerValueKinds(t *testing.T) {
	var floatOff, bigOff uint32
	u := load(t, func(b *format.Builder) {
		floatOff = b.AddFloat(2.5)
		bigOff = b.AddBigInt(new(big.Int).Lsh(big.NewInt(-7), 100))
		fhi, flo := op.SplitU32(floatOff)
		bhi, blo := op.SplitU32(bigOff)
		objs := [][]op.Code{
			{op.MakeInt, intImm(-42), op.ReturnConstant, 0},
			{op.MakeFloat, fhi, flo, op.ReturnConstant, 1},
			{op.MakeBigInt, bhi, blo, op.ReturnConstant, 2},
			{op.MakeFloat, fhi, flo, op.MakeFloat, fhi, flo, op.MakeComplex, op.ReturnConstant, 3},
			{op.LoadSingleton, op.Code(op.SingletonNil), op.ReturnConstant, 4},
			{op.LoadSingleton, op.Code(op.SingletonTrue), op.ReturnConstant, 5},
			{op.LoadSingleton, op.Code(op.SingletonFalse), op.ReturnConstant, 6},
		}
		var consts []int
		for _, o := range objs {
			consts = append(consts, b.AddObject(o))
		}
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.ReturnValue},
			Constants:    consts,
		})
		require.NoError(t, err)
	})

	v, err := u.ResolveConstant(0)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v)

	v, err = u.ResolveConstant(1)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = u.ResolveConstant(2)
	require.NoError(t, err)
	want := new(big.Int).Lsh(big.NewInt(-7), 100)
	assert.Zero(t, want.Cmp(v.(*big.Int)))

	v, err = u.ResolveConstant(3)
	require.NoError(t, err)
	assert.Equal(t, complex(2.5, 2.5), v)

	v, err = u.ResolveConstant(4)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = u.ResolveConstant(5)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = u.ResolveConstant(6)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestNestedCodeUnit(t *testing.T) {
	u := load(t, func(b *format.Builder) {
		inner := b.InternString("inner-value")
		innerObj := b.AddObject([]op.Code{
			op.MakeString, op.Code(inner),
			op.ReturnConstant, 0,
		})
		ref := b.AddObject([]op.Code{
			op.MakeCode, 1,
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "outer",
			Filename:     "f.py",
			Instructions: []op.Code{op.LazyLookup, 0, op.ReturnValue},
			Constants:    []int{ref},
		})
		require.NoError(t, err)
		_, err = b.AddUnit(format.UnitParams{
			Name:         "child",
			Filename:     "f.py",
			Instructions: []op.Code{op.ReturnValue},
			Constants:    []int{innerObj},
		})
		require.NoError(t, err)
	})

	v, err := u.ResolveConstant(0)
	require.NoError(t, err)
	child, ok := v.(*Unit)
	require.True(t, ok, "expected *Unit, got %T", v)
	name, err := child.Name()
	require.NoError(t, err)
	assert.Equal(t, "child", name)

	// The nested view shares the container but owns fresh slots.
	assert.Equal(t, Empty, child.State(0))
	inner, err := child.ResolveConstant(0)
	require.NoError(t, err)
	assert.Equal(t, "inner-value", inner)

	// A second load of the same on-disk unit starts empty again.
	other, err := u.NestedUnit(1)
	require.NoError(t, err)
	assert.Equal(t, Empty, other.State(0))
}

func TestConcurrentResolveBuildsOnce(t *testing.T) {
	var mu sync.Mutex
	builds := 0
	u := load(t, func(b *format.Builder) {
		s := b.InternString("shared")
		obj := b.AddObject([]op.Code{
			op.MakeString, op.Code(s),
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.ReturnValue},
			Constants:    []int{obj},
		})
		require.NoError(t, err)
	}, WithBuildObserver(func(unitIndex, pos int) {
		mu.Lock()
		builds++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := u.ResolveConstant(0)
			assert.NoError(t, err)
			assert.Equal(t, "shared", v)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, builds)
	assert.Equal(t, Built, u.State(u.ConstantPosition(0)))
}

func TestMakerRejectsOrdinaryOpcode(t *testing.T) {
	u := load(t, func(b *format.Builder) {
		// NOP is a recognized opcode but has no meaning inside a maker.
		obj := b.AddObject([]op.Code{
			op.Nop,
			op.LoadSingleton, op.Code(op.SingletonNil),
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.ReturnValue},
			Constants:    []int{obj},
		})
		require.NoError(t, err)
	})

	_, err := u.ResolveConstant(0)
	require.Error(t, err)
	assert.True(t, errz.IsKind(err, errz.ErrUnknownInstruction))
	assert.Equal(t, Empty, u.State(0))
}

func TestFailedBuildCanBeRetried(t *testing.T) {
	// A cyclic failure resets the slot; the state machine must allow a later
	// attempt rather than wedging in Building.
	u := load(t, func(b *format.Builder) {
		obj := b.AddObject([]op.Code{
			op.LazyLookup, 0,
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.ReturnValue},
			Constants:    []int{obj},
		})
		require.NoError(t, err)
	})

	for i := 0; i < 2; i++ {
		_, err := u.ResolveConstant(0)
		require.Error(t, err)
		assert.True(t, errz.IsKind(err, errz.ErrCyclicConstant))
		assert.Equal(t, Empty, u.State(0))
	}
}

func TestUnitLocations(t *testing.T) {
	u := load(t, func(b *format.Builder) {
		obj := b.AddObject([]op.Code{
			op.LoadSingleton, op.Code(op.SingletonNil),
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "script.py",
			Instructions: []op.Code{op.LazyLookup, 0, op.ReturnValue},
			Constants:    []int{obj},
			Definition:   location.Entry{Line: 1, Column: 0},
			Locations: []location.Entry{
				{Line: 3, Column: 4},
				{Line: 3, Column: 4},
				{Line: 4, Column: 0},
			},
		})
		require.NoError(t, err)
	})

	def, err := u.Definition()
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 1, Column: 0, Filename: "script.py"}, def)

	pos, err := u.Location(0)
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 3, Column: 4, Filename: "script.py"}, pos)

	pos, err = u.Location(2)
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 4, Column: 0, Filename: "script.py"}, pos)

	_, err = u.Location(5)
	require.Error(t, err)
}

func TestResolveOutOfRange(t *testing.T) {
	u := load(t, func(b *format.Builder) {
		obj := b.AddObject([]op.Code{
			op.LoadSingleton, op.Code(op.SingletonNil),
			op.ReturnConstant, 0,
		})
		_, err := b.AddUnit(format.UnitParams{
			Name:         "main",
			Filename:     "f.py",
			Instructions: []op.Code{op.ReturnValue},
			Constants:    []int{obj},
		})
		require.NoError(t, err)
	})

	_, err := u.Resolve(-1)
	assert.True(t, errz.IsKind(err, errz.ErrCorruptOffset))
	_, err = u.Resolve(1)
	assert.True(t, errz.IsKind(err, errz.ErrCorruptOffset))
	_, err = u.ResolveConstant(5)
	assert.True(t, errz.IsKind(err, errz.ErrCorruptOffset))
	_, err = u.ResolveName(0)
	assert.True(t, errz.IsKind(err, errz.ErrCorruptOffset))
}
