package codegen

import (
	"fmt"
	"testing"

	"lowerc/ir"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverflowChecks(t *testing.T) {
	ops := map[ir.BinOpKind]string{ir.BinOpAdd: "add", ir.BinOpSub: "sub", ir.BinOpMul: "mul"}

	for _, bits := range []int{8, 16, 32, 64} {
		for _, signed := range []bool{true, false} {
			for op, name := range ops {
				it := &types.IntType{Bits: bits, Signed: signed}
				sign := "u"
				if signed {
					sign = "s"
				}

				intrinsic := fmt.Sprintf("llvm.%s%s.with.overflow.i%d", sign, name, bits)
				t.Run(intrinsic, func(t *testing.T) {
					prog := newProgram()
					binary(prog, "f", it, op)

					fn := findFunc(t, generate(t, prog, Options{}), "f")
					assert.Equal(t, 1, callsTo(fn, intrinsic))
					assert.Equal(t, 1, traps(fn))

					prog = newProgram()
					binary(prog, "f", it, op)

					fn = findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
					assert.Equal(t, 0, callsTo(fn, intrinsic))
					assert.Equal(t, 0, traps(fn))
				})
			}
		}
	}
}

func TestWrappingArithmeticUnchecked(t *testing.T) {
	prog := newProgram()
	binary(prog, "f", u8, ir.BinOpAddWrap)

	fn := findFunc(t, generate(t, prog, Options{}), "f")
	assert.Equal(t, 0, traps(fn))

	adds := instsOf[*llir.InstAdd](fn)
	require.Len(t, adds, 1)
	assert.Empty(t, adds[0].OverflowFlags)
}

func TestUncheckedArithmeticAssumesNoWrap(t *testing.T) {
	prog := newProgram()
	binary(prog, "f", i32, ir.BinOpAdd)

	fn := findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
	adds := instsOf[*llir.InstAdd](fn)
	require.Len(t, adds, 1)
	assert.Equal(t, []enum.OverflowFlag{enum.OverflowFlagNSW}, adds[0].OverflowFlags)
}

func TestSafetyScopeOverride(t *testing.T) {
	prog := newProgram()
	fn := binary(prog, "f", i32, ir.BinOpAdd)
	fn.Scope.SetSafety(false)

	llFunc := findFunc(t, generate(t, prog, Options{}), "f")
	assert.Equal(t, 0, traps(llFunc))
}

func TestDivByZero(t *testing.T) {
	prog := newProgram()
	binary(prog, "f", i32, ir.BinOpDiv)

	fn := findFunc(t, generate(t, prog, Options{}), "f")
	require.Equal(t, 1, icmps(fn, enum.IPredEQ))
	assert.Equal(t, 1, traps(fn))

	// The check happens in the entry block: the division only in the block
	// reached when the divisor is nonzero.
	assert.Empty(t, instsOfBlock[*llir.InstSDiv](fn.Blocks[0]))
	assert.Len(t, instsOf[*llir.InstSDiv](fn), 1)

	prog = newProgram()
	binary(prog, "f", i32, ir.BinOpDiv)

	fn = findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
	assert.Equal(t, 0, icmps(fn, enum.IPredEQ))
	assert.Equal(t, 0, traps(fn))
	assert.Len(t, instsOf[*llir.InstSDiv](fn), 1)
}

func TestExactDivisionChecksRemainder(t *testing.T) {
	prog := newProgram()
	binary(prog, "f", u32, ir.BinOpDivExact)

	fn := findFunc(t, generate(t, prog, Options{}), "f")
	assert.Equal(t, 2, traps(fn))
	assert.Len(t, instsOf[*llir.InstURem](fn), 1)

	divs := instsOf[*llir.InstUDiv](fn)
	require.Len(t, divs, 1)
	assert.True(t, divs[0].Exact)
}

func instsOfBlock[T any](b *llir.Block) []T {
	var out []T
	for _, inst := range b.Insts {
		if x, ok := inst.(T); ok {
			out = append(out, x)
		}
	}

	return out
}

// -----------------------------------------------------------------------------

// indexArray defines a function indexing a local `[10]u8` at ndx.
func indexArray(prog *ir.Program, ndx int64) {
	arr := &types.ArrayType{Elem: u8, Len: 10}
	zeroes := prog.Consts.Zeroes(arr)
	index := prog.Consts.Int(usize, ndx)

	define(prog, "f", &types.FuncType{Return: u8}, func(b *ir.FuncBuilder) {
		v := b.Local("arr", arr)
		b.Block("entry")

		b.Emit(types.Void, &ir.DeclVar{Var: v, Init: b.Const(zeroes)})
		ptr := b.Emit(&types.PointerType{Elem: arr}, &ir.VarPtr{Var: v})
		elem := b.Emit(&types.PointerType{Elem: u8}, &ir.ElemPtr{Array: ptr, Index: b.Const(index), SafetyCheck: true})
		val := b.Emit(u8, &ir.LoadPtr{Ptr: elem})
		b.Emit(types.Void, &ir.Return{Value: val})
	})
}

func TestUpperBoundCheckIsSingleCompare(t *testing.T) {
	prog := newProgram()
	indexArray(prog, 10)

	fn := findFunc(t, generate(t, prog, Options{}), "f")

	cmps := instsOf[*llir.InstICmp](fn)
	require.Len(t, cmps, 1)
	assert.Equal(t, enum.IPredULT, cmps[0].Pred)

	limit, ok := cmps[0].Y.(*constant.Int)
	require.True(t, ok)
	assert.Equal(t, int64(10), limit.X.Int64())

	assert.Equal(t, 1, traps(fn))

	condBrs := 0
	for _, b := range fn.Blocks {
		if _, ok := b.Term.(*llir.TermCondBr); ok {
			condBrs++
		}
	}

	assert.Equal(t, 1, condBrs)
}

func TestUncheckedIndexing(t *testing.T) {
	prog := newProgram()
	indexArray(prog, 10)

	fn := findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
	assert.Empty(t, instsOf[*llir.InstICmp](fn))
	assert.Equal(t, 0, traps(fn))
	assert.Len(t, instsOf[*llir.InstGetElementPtr](fn), 1)
}

func TestUndefinedLocalsFilledUnderSafety(t *testing.T) {
	build := func() *ir.Program {
		prog := newProgram()
		undef := prog.Consts.Undef(i64)

		define(prog, "f", &types.FuncType{Return: types.Void}, func(b *ir.FuncBuilder) {
			v := b.Local("x", i64)
			b.Block("entry")

			b.Emit(types.Void, &ir.DeclVar{Var: v, Init: b.Const(undef)})
			b.Emit(types.Void, &ir.Return{})
		})

		return prog
	}

	fn := findFunc(t, generate(t, build(), Options{}), "f")
	assert.Equal(t, 1, callsTo(fn, "llvm.memset.p0i8.i64"))

	fn = findFunc(t, generate(t, build(), Options{Release: true, Strip: true}), "f")
	assert.Equal(t, 0, callsTo(fn, "llvm.memset.p0i8.i64"))
}

// -----------------------------------------------------------------------------

func TestShiftLeftOverflowCheck(t *testing.T) {
	for _, it := range []*types.IntType{i32, u32} {
		t.Run(it.Repr(), func(t *testing.T) {
			prog := newProgram()
			binary(prog, "f", it, ir.BinOpShl)

			// The result is shifted back and compared to the operand.
			fn := findFunc(t, generate(t, prog, Options{}), "f")
			assert.Len(t, instsOf[*llir.InstShl](fn), 1)
			if it.Signed {
				assert.Len(t, instsOf[*llir.InstAShr](fn), 1)
			} else {
				assert.Len(t, instsOf[*llir.InstLShr](fn), 1)
			}
			assert.Equal(t, 1, icmps(fn, enum.IPredEQ))
			assert.Equal(t, 1, traps(fn))

			prog = newProgram()
			binary(prog, "f", it, ir.BinOpShl)

			fn = findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
			shls := instsOf[*llir.InstShl](fn)
			require.Len(t, shls, 1)
			assert.Equal(t, []enum.OverflowFlag{noWrapFlag(it)}, shls[0].OverflowFlags)
			assert.Equal(t, 0, traps(fn))
		})
	}
}

func TestNegationNoWrapFlags(t *testing.T) {
	for _, it := range []*types.IntType{i32, u32} {
		prog := newProgram()
		unary(prog, "f", it, it, func(b *ir.FuncBuilder, x ir.Instruction) ir.Instruction {
			return b.Emit(it, &ir.UnOp{Op: ir.UnOpNegation, Value: x})
		})

		fn := findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
		subs := instsOf[*llir.InstSub](fn)
		require.Len(t, subs, 1)
		assert.Equal(t, []enum.OverflowFlag{noWrapFlag(it)}, subs[0].OverflowFlags, it.Repr())
	}
}

// unwrapMaybeFn defines `fn f(x: ?*i32) *i32 { return x.? }` through a pointer
// to the optional.
func unwrapMaybeFn(prog *ir.Program) {
	ptr := &types.PointerType{Elem: i32}
	opt := &types.OptionalType{Child: ptr}
	ft := &types.FuncType{Params: []*types.FuncParam{{Type: opt}}, Return: ptr}

	define(prog, "f", ft, func(b *ir.FuncBuilder) {
		x := b.Param("x")
		b.Block("entry")

		px := b.Emit(&types.PointerType{Elem: opt}, &ir.VarPtr{Var: x})
		child := b.Emit(&types.PointerType{Elem: ptr}, &ir.UnwrapMaybe{Value: px, SafetyCheck: true})
		b.Emit(types.Void, &ir.Return{Value: b.Emit(ptr, &ir.LoadPtr{Ptr: child})})
	})
}

func TestUnwrapMaybeTrapsOnNull(t *testing.T) {
	prog := newProgram()
	unwrapMaybeFn(prog)

	fn := findFunc(t, generate(t, prog, Options{}), "f")
	cmps := instsOf[*llir.InstICmp](fn)
	require.Len(t, cmps, 1)
	assert.Equal(t, enum.IPredNE, cmps[0].Pred)
	assert.IsType(t, &constant.Null{}, cmps[0].Y)
	assert.Equal(t, 1, traps(fn))

	prog = newProgram()
	unwrapMaybeFn(prog)

	fn = findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
	assert.Empty(t, instsOf[*llir.InstICmp](fn))
	assert.Equal(t, 0, traps(fn))
}

func TestUnwrapMaybeValueTrapsOnNull(t *testing.T) {
	opt := &types.OptionalType{Child: i32}

	prog := newProgram()
	unary(prog, "f", opt, i32, func(b *ir.FuncBuilder, x ir.Instruction) ir.Instruction {
		return b.Emit(i32, &ir.UnOp{Op: ir.UnOpUnwrapMaybe, Value: x})
	})

	// The non-null flag is loaded and branched on directly.
	fn := findFunc(t, generate(t, prog, Options{}), "f")
	assert.Empty(t, instsOf[*llir.InstICmp](fn))
	assert.Equal(t, 1, traps(fn))
}

func TestUnwrapErrorTrapsOnError(t *testing.T) {
	eut := &types.ErrorUnionType{Child: i32, Tag: &types.IntType{Bits: 16}}
	build := func() *ir.Program {
		prog := newProgram()
		unary(prog, "f", eut, i32, func(b *ir.FuncBuilder, x ir.Instruction) ir.Instruction {
			return b.Emit(i32, &ir.UnOp{Op: ir.UnOpUnwrapError, Value: x})
		})

		return prog
	}

	// The tag must be the reserved "no error" tag.
	fn := findFunc(t, generate(t, build(), Options{}), "f")
	cmps := instsOf[*llir.InstICmp](fn)
	require.Len(t, cmps, 1)
	assert.Equal(t, enum.IPredEQ, cmps[0].Pred)

	zero, ok := cmps[0].Y.(*constant.Int)
	require.True(t, ok)
	assert.Equal(t, int64(0), zero.X.Int64())
	assert.Equal(t, 1, traps(fn))

	fn = findFunc(t, generate(t, build(), Options{Release: true, Strip: true}), "f")
	assert.Empty(t, instsOf[*llir.InstICmp](fn))
	assert.Equal(t, 0, traps(fn))
}

// indexSlice defines `fn f(s: []u8, i: usize) u8 { return s[i] }`.
func indexSlice(prog *ir.Program) {
	st := &types.SliceType{Elem: u8}
	ft := &types.FuncType{Params: []*types.FuncParam{{Type: st}, {Type: usize}}, Return: u8}

	define(prog, "f", ft, func(b *ir.FuncBuilder) {
		s := b.Param("s")
		i := b.Param("i")
		b.Block("entry")

		ps := b.Emit(&types.PointerType{Elem: st}, &ir.VarPtr{Var: s})
		li := b.Emit(usize, &ir.LoadPtr{Ptr: b.Emit(&types.PointerType{Elem: usize}, &ir.VarPtr{Var: i})})
		elem := b.Emit(&types.PointerType{Elem: u8}, &ir.ElemPtr{Array: ps, Index: li, SafetyCheck: true})
		b.Emit(types.Void, &ir.Return{Value: b.Emit(u8, &ir.LoadPtr{Ptr: elem})})
	})
}

func TestSliceIndexCheckedAgainstLength(t *testing.T) {
	prog := newProgram()
	indexSlice(prog)

	fn := findFunc(t, generate(t, prog, Options{}), "f")
	cmps := instsOf[*llir.InstICmp](fn)
	require.Len(t, cmps, 1)
	assert.Equal(t, enum.IPredULT, cmps[0].Pred)

	// The bound is the length loaded from the slice at runtime.
	assert.IsType(t, &llir.InstLoad{}, cmps[0].Y)
	assert.Equal(t, 1, traps(fn))

	prog = newProgram()
	indexSlice(prog)

	fn = findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
	assert.Empty(t, instsOf[*llir.InstICmp](fn))
	assert.Equal(t, 0, traps(fn))
}

// resizeSlice defines a function reinterpreting a slice of from as a slice of
// to.
func resizeSlice(prog *ir.Program, from, to types.Type) {
	src := &types.SliceType{Elem: from}
	dst := &types.SliceType{Elem: to}

	unary(prog, "f", src, dst, func(b *ir.FuncBuilder, x ir.Instruction) ir.Instruction {
		return b.Emit(dst, &ir.Cast{Op: ir.CastResizeSlice, Value: x})
	})
}

func TestResizeSliceChecksLength(t *testing.T) {
	prog := newProgram()
	resizeSlice(prog, u8, u32)

	// A byte length which is not a whole number of u32s traps.
	fn := findFunc(t, generate(t, prog, Options{}), "f")
	rems := instsOf[*llir.InstURem](fn)
	require.Len(t, rems, 1)
	assert.Equal(t, int64(4), rems[0].Y.(*constant.Int).X.Int64())
	assert.Equal(t, 1, icmps(fn, enum.IPredEQ))
	assert.Equal(t, 1, traps(fn))

	divs := instsOf[*llir.InstUDiv](fn)
	require.Len(t, divs, 1)
	assert.True(t, divs[0].Exact)

	prog = newProgram()
	resizeSlice(prog, u8, u32)

	fn = findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
	assert.Empty(t, instsOf[*llir.InstURem](fn))
	assert.Len(t, instsOf[*llir.InstUDiv](fn), 1)
	assert.Equal(t, 0, traps(fn))
}

func TestResizeSliceToBytesIsUnchecked(t *testing.T) {
	prog := newProgram()
	resizeSlice(prog, u32, u8)

	fn := findFunc(t, generate(t, prog, Options{}), "f")
	muls := instsOf[*llir.InstMul](fn)
	require.Len(t, muls, 1)
	assert.Equal(t, []enum.OverflowFlag{enum.OverflowFlagNUW}, muls[0].OverflowFlags)
	assert.Empty(t, instsOf[*llir.InstURem](fn))
	assert.Equal(t, 0, traps(fn))
}
