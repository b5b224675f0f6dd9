package codegen

import (
	"fmt"

	"lowerc/ir"
	"lowerc/report"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// overflowOp enumerates the arithmetic operations with overflow detection.
type overflowOp int

const (
	overflowAdd overflowOp = iota
	overflowSub
	overflowMul
)

var overflowOpNames = [...]string{"add", "sub", "mul"}

// overflowFn returns the overflow-detecting intrinsic for op on values of it.
func (g *Generator) overflowFn(op overflowOp, it *types.IntType) *llir.Func {
	sign := "u"
	if it.Signed {
		sign = "s"
	}

	llType := lltypes.NewInt(uint64(it.Bits))
	name := fmt.Sprintf("llvm.%s%s.with.overflow.i%d", sign, overflowOpNames[op], it.Bits)
	return g.intrinsic(name, lltypes.NewStruct(llType, lltypes.I1), llType, llType)
}

// genOverflowOp generates an arithmetic operation which traps on overflow.
func (g *Generator) genOverflowOp(op overflowOp, it *types.IntType, lhs, rhs value.Value) value.Value {
	res := g.block.NewCall(g.overflowFn(op, it), lhs, rhs)
	result := g.block.NewExtractValue(res, 0)
	overflowBit := g.block.NewExtractValue(res, 1)

	g.guardFail("Overflow", overflowBit)
	return result
}

// genOverflowShl generates a left shift which traps if any set bits are
// shifted out.  The result is shifted back and compared to the original.
func (g *Generator) genOverflowShl(it *types.IntType, lhs, rhs value.Value) value.Value {
	result := g.block.NewShl(lhs, rhs)

	var orig value.Value
	if it.Signed {
		orig = g.block.NewAShr(result, rhs)
	} else {
		orig = g.block.NewLShr(result, rhs)
	}

	g.guard("Overflow", g.block.NewICmp(enum.IPredEQ, lhs, orig))
	return result
}

// -----------------------------------------------------------------------------

func (g *Generator) genBinOp(instr *ir.BinOp) value.Value {
	typ := instr.LHS.Base().Type
	safety := instr.SafetyCheck && g.wantSafety(instr)

	lhs := g.operand(instr.LHS)
	rhs := g.operand(instr.RHS)

	switch instr.Op {
	case ir.BinOpBoolOr, ir.BinOpBinOr:
		return g.block.NewOr(lhs, rhs)
	case ir.BinOpBoolAnd, ir.BinOpBinAnd:
		return g.block.NewAnd(lhs, rhs)
	case ir.BinOpBinXor:
		return g.block.NewXor(lhs, rhs)
	case ir.BinOpCmpEq, ir.BinOpCmpNotEq, ir.BinOpCmpLessThan, ir.BinOpCmpGreaterThan,
		ir.BinOpCmpLessOrEq, ir.BinOpCmpGreaterOrEq:
		return g.genCmp(instr.Op, typ, lhs, rhs)
	case ir.BinOpShl, ir.BinOpShlWrap:
		it := g.intTypeOf(typ)
		if instr.Op == ir.BinOpShlWrap {
			return g.block.NewShl(lhs, rhs)
		} else if safety {
			return g.genOverflowShl(it, lhs, rhs)
		}

		shl := g.block.NewShl(lhs, rhs)
		shl.OverflowFlags = []enum.OverflowFlag{noWrapFlag(it)}
		return shl
	case ir.BinOpShr:
		if g.intTypeOf(typ).Signed {
			return g.block.NewAShr(lhs, rhs)
		}

		return g.block.NewLShr(lhs, rhs)
	case ir.BinOpAdd, ir.BinOpAddWrap:
		return g.genArith(overflowAdd, instr.Op == ir.BinOpAddWrap, safety, typ, lhs, rhs)
	case ir.BinOpSub, ir.BinOpSubWrap:
		return g.genArith(overflowSub, instr.Op == ir.BinOpSubWrap, safety, typ, lhs, rhs)
	case ir.BinOpMul, ir.BinOpMulWrap:
		return g.genArith(overflowMul, instr.Op == ir.BinOpMulWrap, safety, typ, lhs, rhs)
	case ir.BinOpDiv, ir.BinOpDivExact:
		return g.genDiv(safety, typ, lhs, rhs, instr.Op == ir.BinOpDivExact)
	case ir.BinOpMod:
		if safety {
			g.checkDivByZero(typ, rhs)
		}

		if isFloat(typ) {
			return g.block.NewFRem(lhs, rhs)
		} else if g.intTypeOf(typ).Signed {
			return g.block.NewSRem(lhs, rhs)
		}

		return g.block.NewURem(lhs, rhs)
	}

	report.ICE("unknown binary operator: %d", instr.Op)
	return nil
}

// genArith generates an addition, subtraction, or multiplication.  Checked
// integer arithmetic traps on overflow when safety is enabled and is assumed
// not to overflow otherwise.
func (g *Generator) genArith(op overflowOp, wrap, safety bool, typ types.Type, lhs, rhs value.Value) value.Value {
	if isFloat(typ) {
		switch op {
		case overflowAdd:
			return g.block.NewFAdd(lhs, rhs)
		case overflowSub:
			return g.block.NewFSub(lhs, rhs)
		default:
			return g.block.NewFMul(lhs, rhs)
		}
	}

	it := g.intTypeOf(typ)
	if !wrap && safety {
		return g.genOverflowOp(op, it, lhs, rhs)
	}

	var flags []enum.OverflowFlag
	if !wrap {
		flags = []enum.OverflowFlag{noWrapFlag(it)}
	}

	switch op {
	case overflowAdd:
		add := g.block.NewAdd(lhs, rhs)
		add.OverflowFlags = flags
		return add
	case overflowSub:
		sub := g.block.NewSub(lhs, rhs)
		sub.OverflowFlags = flags
		return sub
	default:
		mul := g.block.NewMul(lhs, rhs)
		mul.OverflowFlags = flags
		return mul
	}
}

// checkDivByZero traps if the divisor rhs is zero.
func (g *Generator) checkDivByZero(typ types.Type, rhs value.Value) {
	zero := zeroValue(rhs.Type())

	var isZero value.Value
	if isFloat(typ) {
		isZero = g.block.NewFCmp(enum.FPredOEQ, rhs, zero)
	} else {
		isZero = g.block.NewICmp(enum.IPredEQ, rhs, zero)
	}

	g.guardFail("DivZero", isZero)
}

// genDiv generates a division.  Exact divisions also trap on a nonzero
// remainder when safety is enabled.
func (g *Generator) genDiv(safety bool, typ types.Type, lhs, rhs value.Value, exact bool) value.Value {
	if safety {
		g.checkDivByZero(typ, rhs)
	}

	if isFloat(typ) {
		if exact {
			report.ICE("exact division of floating point type `%s`", typ.Repr())
		}

		return g.block.NewFDiv(lhs, rhs)
	}

	it := g.intTypeOf(typ)

	if exact && safety {
		var rem value.Value
		if it.Signed {
			rem = g.block.NewSRem(lhs, rhs)
		} else {
			rem = g.block.NewURem(lhs, rhs)
		}

		g.guard("DivExact", g.block.NewICmp(enum.IPredEQ, rem, zeroValue(rem.Type())))
	}

	if it.Signed {
		div := g.block.NewSDiv(lhs, rhs)
		div.Exact = exact
		return div
	}

	div := g.block.NewUDiv(lhs, rhs)
	div.Exact = exact
	return div
}

// genCmp generates a comparison.  Floats use ordered comparisons.  Integers
// compare according to their signedness.  All other comparable types compare
// as unsigned integers.
func (g *Generator) genCmp(op ir.BinOpKind, typ types.Type, lhs, rhs value.Value) value.Value {
	if isFloat(typ) {
		return g.block.NewFCmp(floatPred(op), lhs, rhs)
	}

	signed := false
	switch t := typ.(type) {
	case *types.IntType:
		signed = t.Signed
	case *types.EnumType:
		if g.isByRef(t) {
			report.ICE("comparison of enum `%s` with payloads", t.Name)
		}
	case *types.PointerType, *types.FuncType, *types.BoolType, *types.ErrorSetType:
	case *types.OptionalType:
		if !types.IsPointerLike(t.Child) {
			report.ICE("comparison of non-pointer optional `%s`", t.Repr())
		}
	default:
		report.ICE("comparison of values of type `%s`", typ.Repr())
	}

	return g.block.NewICmp(intPred(op, signed), lhs, rhs)
}

// -----------------------------------------------------------------------------

func (g *Generator) genNegation(instr *ir.UnOp, val value.Value) value.Value {
	typ := instr.Value.Base().Type
	if isFloat(typ) {
		return g.block.NewFNeg(val)
	}

	zero := zeroValue(val.Type())
	if instr.Op == ir.UnOpNegation && g.wantSafety(instr) {
		return g.genOverflowOp(overflowSub, g.intTypeOf(typ), zero, val)
	}

	sub := g.block.NewSub(zero, val)
	if instr.Op == ir.UnOpNegation {
		sub.OverflowFlags = []enum.OverflowFlag{noWrapFlag(g.intTypeOf(typ))}
	}

	return sub
}

// genCountZeroes generates a call to the count leading or trailing zeroes
// intrinsic.  Zero is a defined input.
func (g *Generator) genCountZeroes(name string, val value.Value) value.Value {
	it := val.Type().(*lltypes.IntType)
	fn := g.intrinsic(fmt.Sprintf("llvm.%s.i%d", name, it.BitSize), it, it, lltypes.I1)
	return g.block.NewCall(fn, val, constant.False)
}

// -----------------------------------------------------------------------------

// intTypeOf returns the integer type values of typ are represented as.
func (g *Generator) intTypeOf(typ types.Type) *types.IntType {
	switch t := typ.(type) {
	case *types.IntType:
		return t
	case *types.EnumType:
		return t.Tag
	case *types.ErrorSetType:
		return t.Tag
	case *types.ErrorUnionType:
		return t.Tag
	}

	report.ICE("expected integer type, got `%s`", typ.Repr())
	return nil
}

func isFloat(typ types.Type) bool {
	_, ok := typ.(*types.FloatType)
	return ok
}

// noWrapFlag returns the flag asserting an operation on it does not wrap.
func noWrapFlag(it *types.IntType) enum.OverflowFlag {
	if it.Signed {
		return enum.OverflowFlagNSW
	}

	return enum.OverflowFlagNUW
}

func intPred(op ir.BinOpKind, signed bool) enum.IPred {
	switch op {
	case ir.BinOpCmpEq:
		return enum.IPredEQ
	case ir.BinOpCmpNotEq:
		return enum.IPredNE
	case ir.BinOpCmpLessThan:
		if signed {
			return enum.IPredSLT
		}
		return enum.IPredULT
	case ir.BinOpCmpGreaterThan:
		if signed {
			return enum.IPredSGT
		}
		return enum.IPredUGT
	case ir.BinOpCmpLessOrEq:
		if signed {
			return enum.IPredSLE
		}
		return enum.IPredULE
	case ir.BinOpCmpGreaterOrEq:
		if signed {
			return enum.IPredSGE
		}
		return enum.IPredUGE
	}

	report.ICE("not a comparison operator: %d", op)
	return 0
}

func floatPred(op ir.BinOpKind) enum.FPred {
	switch op {
	case ir.BinOpCmpEq:
		return enum.FPredOEQ
	case ir.BinOpCmpNotEq:
		return enum.FPredONE
	case ir.BinOpCmpLessThan:
		return enum.FPredOLT
	case ir.BinOpCmpGreaterThan:
		return enum.FPredOGT
	case ir.BinOpCmpLessOrEq:
		return enum.FPredOLE
	case ir.BinOpCmpGreaterOrEq:
		return enum.FPredOGE
	}

	report.ICE("not a comparison operator: %d", op)
	return 0
}
