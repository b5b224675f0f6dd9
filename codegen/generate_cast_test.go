package codegen

import (
	"testing"

	"lowerc/ir"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func castFn(prog *ir.Program, from, to types.Type, op ir.CastOp) {
	unary(prog, "f", from, to, func(b *ir.FuncBuilder, x ir.Instruction) ir.Instruction {
		return b.Emit(to, &ir.Cast{Op: op, Value: x})
	})
}

func lowerCast(t *testing.T, from, to types.Type, opts Options) *llir.Func {
	prog := newProgram()
	castFn(prog, from, to, ir.CastWidenOrShorten)
	return findFunc(t, generate(t, prog, opts), "f")
}

func TestSignedToUnsignedCast(t *testing.T) {
	fn := lowerCast(t, i32, u32, Options{})

	cmps := instsOf[*llir.InstICmp](fn)
	require.Len(t, cmps, 1)
	assert.Equal(t, enum.IPredSGE, cmps[0].Pred)
	assert.Equal(t, 1, traps(fn))

	fn = lowerCast(t, i32, u32, Options{Release: true, Strip: true})
	assert.Empty(t, instsOf[*llir.InstICmp](fn))
}

func TestUnsignedToSignedCast(t *testing.T) {
	fn := lowerCast(t, u32, i32, Options{})

	cmps := instsOf[*llir.InstICmp](fn)
	require.Len(t, cmps, 1)
	assert.Equal(t, enum.IPredULE, cmps[0].Pred)

	limit, ok := cmps[0].Y.(*constant.Int)
	require.True(t, ok)
	assert.Equal(t, int64(1<<31-1), limit.X.Int64())
}

func TestUnsignedWideningToSignedIsUnchecked(t *testing.T) {
	fn := lowerCast(t, u8, i32, Options{})

	assert.Empty(t, instsOf[*llir.InstICmp](fn))
	assert.Len(t, instsOf[*llir.InstZExt](fn), 1)
}

func TestSignedWideningToUnsignedIsChecked(t *testing.T) {
	fn := lowerCast(t, i8, u32, Options{})

	cmps := instsOf[*llir.InstICmp](fn)
	require.Len(t, cmps, 1)
	assert.Equal(t, enum.IPredSGE, cmps[0].Pred)
	assert.Len(t, instsOf[*llir.InstSExt](fn), 1)
}

func TestNarrowingCast(t *testing.T) {
	fn := lowerCast(t, i64, i8, Options{})

	// The truncated value is extended back and compared to the original.
	assert.Len(t, instsOf[*llir.InstTrunc](fn), 1)
	assert.Len(t, instsOf[*llir.InstSExt](fn), 1)
	assert.Equal(t, 1, icmps(fn, enum.IPredEQ))
	assert.Equal(t, 1, traps(fn))

	fn = lowerCast(t, i64, i8, Options{Release: true, Strip: true})
	assert.Len(t, instsOf[*llir.InstTrunc](fn), 1)
	assert.Empty(t, instsOf[*llir.InstICmp](fn))
}

func TestNarrowingSignChange(t *testing.T) {
	fn := lowerCast(t, i64, u8, Options{})

	assert.Equal(t, 1, icmps(fn, enum.IPredSGE))
	assert.Equal(t, 1, icmps(fn, enum.IPredEQ))
	assert.Equal(t, 2, traps(fn))
}

// narrowedBack evaluates the round trip of a checked narrowing cast on x the
// way the generated code does: x is truncated and extended back.  The check
// passes when the result equals x.
func narrowedBack(t *testing.T, fn *llir.Func, x int64) int64 {
	t.Helper()

	truncs := instsOf[*llir.InstTrunc](fn)
	require.Len(t, truncs, 1)

	bits := truncs[0].To.(*lltypes.IntType).BitSize
	low := x & (int64(1)<<bits - 1)

	for _, ext := range instsOf[*llir.InstSExt](fn) {
		if ext.From == truncs[0] {
			if low >= int64(1)<<(bits-1) {
				return low - int64(1)<<bits
			}

			return low
		}
	}

	for _, ext := range instsOf[*llir.InstZExt](fn) {
		if ext.From == truncs[0] {
			return low
		}
	}

	require.Fail(t, "truncated value is never extended back")
	return 0
}

func TestNarrowingToUnsignedRoundTrips(t *testing.T) {
	i16 := &types.IntType{Bits: 16, Signed: true}
	fn := lowerCast(t, i16, u8, Options{})

	assert.Equal(t, int64(200), narrowedBack(t, fn, 200))
	assert.Equal(t, int64(5), narrowedBack(t, fn, 5))
	assert.NotEqual(t, int64(300), narrowedBack(t, fn, 300))

	// Negative values are caught by the sign check.
	assert.Equal(t, 1, icmps(fn, enum.IPredSGE))
	assert.Equal(t, 1, icmps(fn, enum.IPredEQ))
	assert.Equal(t, 2, traps(fn))
}

func TestNarrowingToSignedRoundTrips(t *testing.T) {
	u16 := &types.IntType{Bits: 16}
	fn := lowerCast(t, u16, i8, Options{})

	assert.Equal(t, int64(100), narrowedBack(t, fn, 100))
	assert.Equal(t, 1, icmps(fn, enum.IPredULE))

	fn = lowerCast(t, i64, i8, Options{})
	assert.Equal(t, int64(-100), narrowedBack(t, fn, -100))
	assert.NotEqual(t, int64(200), narrowedBack(t, fn, 200))
}

func TestMaybeWrapPointerIsIdentity(t *testing.T) {
	ptr := &types.PointerType{Elem: i32}
	opt := &types.OptionalType{Child: ptr}

	prog := newProgram()
	castFn(prog, ptr, opt, ir.CastMaybeWrap)

	fn := findFunc(t, generate(t, prog, Options{}), "f")
	// Only the parameter spill is stored.
	assert.Len(t, instsOf[*llir.InstStore](fn), 1)
}

func TestMaybeWrapValue(t *testing.T) {
	opt := &types.OptionalType{Child: i32}

	prog := newProgram()
	castFn(prog, i32, opt, ir.CastMaybeWrap)

	fn := findFunc(t, generate(t, prog, Options{}), "f")

	// The parameter is spilled and the child and non-null bit are stored to the
	// temporary.
	stores := instsOf[*llir.InstStore](fn)
	require.Len(t, stores, 3)
	assert.Equal(t, constant.True, stores[2].Src)
}

// -----------------------------------------------------------------------------

func TestAsmTemplate(t *testing.T) {
	asm := &ir.Asm{
		Template: "mov %[out], %[in]; cost $5 %%",
		Outputs:  []*ir.AsmOutput{{Name: "out", Constraint: "=r"}},
		Inputs:   []*ir.AsmInput{{Name: "in", Constraint: "r"}},
	}

	tmpl, err := asmTemplate(asm)
	require.NoError(t, err)
	assert.Equal(t, "mov $0, $1; cost $$5 %", tmpl)
}

func TestAsmTemplateErrors(t *testing.T) {
	_, err := asmTemplate(&ir.Asm{Template: "mov %[missing]"})
	assert.Error(t, err)

	_, err = asmTemplate(&ir.Asm{Template: "mov %[out"})
	assert.Error(t, err)
}
