package codegen

import (
	"testing"

	"lowerc/ir"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selectFn defines `fn f(x: i32, c: bool) i32 { return c ? x + x : 0 }` with
// the result chosen by a phi in the join block.
func selectFn(prog *ir.Program) {
	zero := prog.Consts.Int(i32, 0)
	ft := &types.FuncType{Params: []*types.FuncParam{{Type: i32}, {Type: types.Bool}}, Return: i32}

	define(prog, "f", ft, func(b *ir.FuncBuilder) {
		x := b.Param("x")
		c := b.Param("c")

		entry := b.Block("entry")
		then := b.Block("then")
		els := b.Block("else")
		join := b.Block("join")

		b.SetBlock(entry)
		lx := b.Emit(i32, &ir.LoadPtr{Ptr: b.Emit(&types.PointerType{Elem: i32}, &ir.VarPtr{Var: x})})
		lc := b.Emit(types.Bool, &ir.LoadPtr{Ptr: b.Emit(&types.PointerType{Elem: types.Bool}, &ir.VarPtr{Var: c})})
		b.Emit(types.Void, &ir.CondBr{Cond: lc, Then: then, Else: els})

		b.SetBlock(then)
		sum := b.Emit(i32, &ir.BinOp{Op: ir.BinOpAdd, LHS: lx, RHS: lx, SafetyCheck: true})
		b.Emit(types.Void, &ir.Br{Dest: join})

		b.SetBlock(els)
		b.Emit(types.Void, &ir.Br{Dest: join})

		b.SetBlock(join)
		phi := b.Emit(i32, &ir.Phi{Incoming: []ir.PhiIncoming{
			{Block: then, Value: sum},
			{Block: els, Value: b.Const(zero)},
		}})
		b.Emit(types.Void, &ir.Return{Value: phi})
	})
}

func TestPhiIncomingEdges(t *testing.T) {
	prog := newProgram()
	selectFn(prog)

	var mod *llir.Module
	require.NotPanics(t, func() { mod = generate(t, prog, Options{}) })

	fn := findFunc(t, mod, "f")
	phis := instsOf[*llir.InstPhi](fn)
	require.Len(t, phis, 1)
	assert.True(t, phis[0].Type().Equal(lltypes.I32))
	require.Len(t, phis[0].Incs, 2)

	// The overflow check of the addition ends `then` in another block.
	then, ok := phis[0].Incs[0].Pred.(*llir.Block)
	require.True(t, ok)
	assert.Equal(t, "OverflowOk", then.Name())

	els, ok := phis[0].Incs[1].Pred.(*llir.Block)
	require.True(t, ok)
	assert.Equal(t, "else", els.Name())

	zero, ok := phis[0].Incs[1].X.(*constant.Int)
	require.True(t, ok)
	assert.Equal(t, int64(0), zero.X.Int64())

	assert.Contains(t, mod.String(), "phi i32")
}

func TestPhiWithoutChecks(t *testing.T) {
	prog := newProgram()
	selectFn(prog)

	fn := findFunc(t, generate(t, prog, Options{Release: true, Strip: true}), "f")
	phis := instsOf[*llir.InstPhi](fn)
	require.Len(t, phis, 1)
	require.Len(t, phis[0].Incs, 2)

	then, ok := phis[0].Incs[0].Pred.(*llir.Block)
	require.True(t, ok)
	assert.Equal(t, "then", then.Name())
}

func TestDeadComptimeInstructionIsInternal(t *testing.T) {
	prog := newProgram()
	define(prog, "f", &types.FuncType{Return: types.Void}, func(b *ir.FuncBuilder) {
		b.Block("entry")
		b.Emit(types.Void, &ir.Comptime{Op: ir.ComptimeSizeOf})
		b.Emit(types.Void, &ir.Return{})
	})

	assert.Panics(t, func() {
		Generate(prog, Options{Strip: true})
	})
}
