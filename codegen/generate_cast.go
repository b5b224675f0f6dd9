package codegen

import (
	"math/big"

	"lowerc/ir"
	"lowerc/report"
	"lowerc/types"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

func (g *Generator) genCast(instr *ir.Cast) value.Value {
	from := instr.Value.Base().Type
	to := instr.Type
	val := g.operand(instr.Value)
	safety := g.wantSafety(instr)

	switch instr.Op {
	case ir.CastNoop:
		return val
	case ir.CastErrToInt:
		return g.genErrToInt(safety, from, to, val)
	case ir.CastMaybeWrap:
		return g.genMaybeWrap(instr, val)
	case ir.CastErrorWrap:
		return g.genErrorWrap(instr, val)
	case ir.CastPureErrorWrap:
		eut := to.(*types.ErrorUnionType)
		l := g.layoutOf(eut)
		if !l.ByRef {
			return val
		}

		slot := g.tempSlot(instr)
		g.block.NewStore(val, g.fieldPtr(slot, l.Type, errUnionNdxTag))
		return slot
	case ir.CastPtrToInt:
		if val == nil {
			return zeroValue(g.layoutOf(to).Type)
		}

		return g.block.NewPtrToInt(val, g.layoutOf(to).Type)
	case ir.CastIntToPtr:
		if !g.hasBits(to) {
			return nil
		}

		return g.block.NewIntToPtr(val, g.layoutOf(to).Type)
	case ir.CastPointerReinterpret:
		if val == nil || !g.hasBits(to) {
			return nil
		}

		return g.bitcast(val, g.layoutOf(to).Type)
	case ir.CastWidenOrShorten:
		if isFloat(from) {
			return g.floatWidenOrShorten(from.(*types.FloatType), to.(*types.FloatType), val)
		}

		return g.widenOrShorten(safety, g.intTypeOf(from), g.intTypeOf(to), val)
	case ir.CastToUnknownSizeArray:
		return g.genArrayToSlice(instr, val)
	case ir.CastResizeSlice:
		return g.genResizeSlice(instr, safety, val)
	case ir.CastBytesToSlice:
		return g.genBytesToSlice(instr, val)
	case ir.CastIntToFloat:
		ft := g.layoutOf(to).Type
		if g.intTypeOf(from).Signed {
			return g.block.NewSIToFP(val, ft)
		}

		return g.block.NewUIToFP(val, ft)
	case ir.CastFloatToInt:
		it := g.layoutOf(to).Type
		if g.intTypeOf(to).Signed {
			return g.block.NewFPToSI(val, it)
		}

		return g.block.NewFPToUI(val, it)
	case ir.CastBoolToInt:
		it := g.intTypeOf(to)
		if it.Bits == 1 {
			return val
		}

		return g.block.NewZExt(val, g.layoutOf(it).Type)
	case ir.CastIntToEnum:
		et := to.(*types.EnumType)
		if g.isByRef(et) {
			report.ICE("integer cast to enum `%s` with payloads", et.Name)
		}

		return g.widenOrShorten(safety, g.intTypeOf(from), et.Tag, val)
	case ir.CastEnumToInt:
		et := from.(*types.EnumType)
		if g.isByRef(et) {
			val = g.loadField(val, g.layoutOf(et).Type, enumNdxTag)
		}

		return g.widenOrShorten(safety, et.Tag, g.intTypeOf(to), val)
	}

	report.ICE("unknown cast operation: %d", instr.Op)
	return nil
}

// genErrToInt converts the error tag of an error set or error union to an
// integer.
func (g *Generator) genErrToInt(safety bool, from, to types.Type, val value.Value) value.Value {
	var tag *types.IntType
	switch t := from.(type) {
	case *types.ErrorSetType:
		tag = t.Tag
	case *types.ErrorUnionType:
		tag = t.Tag
		if l := g.layoutOf(t); l.ByRef {
			val = g.loadField(val, l.Type, errUnionNdxTag)
		}
	default:
		report.ICE("error to integer cast of value of type `%s`", from.Repr())
	}

	return g.widenOrShorten(safety, tag, g.intTypeOf(to), val)
}

// genMaybeWrap wraps a value in an optional.
func (g *Generator) genMaybeWrap(instr *ir.Cast, val value.Value) value.Value {
	ot := optionalOf(instr.Type)
	if types.IsPointerLike(ot.Child) {
		return val
	}

	l := g.layoutOf(ot)
	if !l.ByRef {
		return constant.True
	}

	slot := g.tempSlot(instr)
	g.storeValue(val, g.fieldPtr(slot, l.Type, maybeNdxChild), ot.Child)
	g.block.NewStore(constant.True, g.fieldPtr(slot, l.Type, maybeNdxNonNull))
	return slot
}

// genErrorWrap wraps a payload in an error union with no error.
func (g *Generator) genErrorWrap(instr *ir.Cast, val value.Value) value.Value {
	eut := instr.Type.(*types.ErrorUnionType)
	l := g.layoutOf(eut)
	tagType := g.layoutOf(eut.Tag).Type.(*lltypes.IntType)
	if !l.ByRef {
		return constant.NewInt(tagType, 0)
	}

	slot := g.tempSlot(instr)
	g.block.NewStore(constant.NewInt(tagType, 0), g.fieldPtr(slot, l.Type, errUnionNdxTag))
	g.storeValue(val, g.fieldPtr(slot, l.Type, errUnionNdxPayload), eut.Child)
	return slot
}

// -----------------------------------------------------------------------------

// widenOrShorten converts an integer between widths and signedness.  When
// safety is enabled, conversions which may lose information are checked:
//
//   - signed to unsigned conversions trap on negative values
//   - unsigned to signed conversions which do not widen trap on values above
//     the largest value of the target
//   - narrowing conversions trap unless the value survives being truncated and
//     extended back
func (g *Generator) widenOrShorten(safety bool, from, to *types.IntType, val value.Value) value.Value {
	if to.Bits == 0 {
		return nil
	} else if from.Bits == 0 {
		return constant.NewInt(lltypes.NewInt(uint64(to.Bits)), 0)
	}

	fromType := val.Type().(*lltypes.IntType)
	toType := lltypes.NewInt(uint64(to.Bits))

	if safety && from.Signed != to.Signed {
		g.checkSignCast(from, to, val)
	}

	switch {
	case from.Bits == to.Bits:
		return val
	case from.Bits < to.Bits:
		if from.Signed {
			return g.block.NewSExt(val, toType)
		}

		return g.block.NewZExt(val, toType)
	}

	trunc := g.block.NewTrunc(val, toType)
	if !safety {
		return trunc
	}

	// The truncated value is read back with the target's signedness: the sign
	// of the source has already been checked.
	var orig value.Value
	if to.Signed {
		orig = g.block.NewSExt(trunc, fromType)
	} else {
		orig = g.block.NewZExt(trunc, fromType)
	}

	g.guard("CastShorten", g.block.NewICmp(enum.IPredEQ, val, orig))
	return trunc
}

// checkSignCast traps if val of type from changes sign when converted to to.
func (g *Generator) checkSignCast(from, to *types.IntType, val value.Value) {
	it := val.Type().(*lltypes.IntType)

	if from.Signed {
		g.guard("SignCast", g.block.NewICmp(enum.IPredSGE, val, constant.NewInt(it, 0)))
		return
	}

	if to.Bits > from.Bits {
		return
	}

	// The largest value of the target fits in the source since the target is
	// no wider.
	limit := new(big.Int).Lsh(big.NewInt(1), uint(to.Bits-1))
	limit.Sub(limit, big.NewInt(1))
	g.guard("SignCast", g.block.NewICmp(enum.IPredULE, val, g.intConst(it, limit)))
}

func (g *Generator) floatWidenOrShorten(from, to *types.FloatType, val value.Value) value.Value {
	ft := g.layoutOf(to).Type

	switch {
	case from.Bits < to.Bits:
		return g.block.NewFPExt(val, ft)
	case from.Bits > to.Bits:
		return g.block.NewFPTrunc(val, ft)
	}

	return val
}

// -----------------------------------------------------------------------------

// storeSlice writes the pointer and length of a slice to the slice at slot.
func (g *Generator) storeSlice(slot value.Value, st *types.SliceType, ptr, length value.Value) {
	l := g.layoutOf(st)
	elemPtr := lltypes.NewPointer(g.pointeeType(st.Elem))

	g.block.NewStore(g.bitcast(ptr, elemPtr), g.fieldPtr(slot, l.Type, sliceNdxPtr))
	g.block.NewStore(length, g.fieldPtr(slot, l.Type, sliceNdxLen))
}

// genArrayToSlice creates a slice over a whole array.
func (g *Generator) genArrayToSlice(instr *ir.Cast, val value.Value) value.Value {
	st := instr.Type.(*types.SliceType)
	at := instr.Value.Base().Type.(*types.ArrayType)
	slot := g.tempSlot(instr)

	ptr := val
	if ptr == nil {
		ptr = constant.NewNull(lltypes.NewPointer(g.pointeeType(st.Elem)))
	}

	g.storeSlice(slot, st, ptr, constant.NewInt(g.usize, int64(at.Len)))
	return slot
}

// genBytesToSlice reinterprets an array of bytes as a slice of another
// element type.
func (g *Generator) genBytesToSlice(instr *ir.Cast, val value.Value) value.Value {
	st := instr.Type.(*types.SliceType)
	at := instr.Value.Base().Type.(*types.ArrayType)
	slot := g.tempSlot(instr)

	elemSize := g.layoutOf(st.Elem).Size
	if elemSize == 0 {
		report.ICE("byte cast to slice of zero-size type `%s`", st.Elem.Repr())
	}

	byteCount := at.Len * g.layoutOf(at.Elem).Size
	g.storeSlice(slot, st, val, constant.NewInt(g.usize, int64(byteCount/elemSize)))
	return slot
}

// genResizeSlice reinterprets a slice as a slice of another element type.
// The length is scaled by the ratio of the element sizes: a byte length which
// is not a whole number of target elements traps when safety is enabled.
func (g *Generator) genResizeSlice(instr *ir.Cast, safety bool, val value.Value) value.Value {
	to := instr.Type.(*types.SliceType)
	from := instr.Value.Base().Type.(*types.SliceType)
	fl := g.layoutOf(from)
	slot := g.tempSlot(instr)

	ptr := g.loadField(val, fl.Type, sliceNdxPtr)
	length := g.loadField(val, fl.Type, sliceNdxLen)

	srcSize := g.layoutOf(from.Elem).Size
	dstSize := g.layoutOf(to.Elem).Size
	if srcSize != dstSize && (srcSize == 0 || dstSize == 0) {
		report.ICE("slice resize between `%s` and `%s`", from.Repr(), to.Repr())
	}

	if srcSize != dstSize {
		if srcSize != 1 {
			mul := g.block.NewMul(length, constant.NewInt(g.usize, int64(srcSize)))
			mul.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNUW}
			length = mul
		}

		if dstSize != 1 {
			size := constant.NewInt(g.usize, int64(dstSize))
			if safety {
				rem := g.block.NewURem(length, size)
				g.guard("SliceWiden", g.block.NewICmp(enum.IPredEQ, rem, constant.NewInt(g.usize, 0)))
			}

			div := g.block.NewUDiv(length, size)
			div.Exact = true
			length = div
		}
	}

	g.storeSlice(slot, to, ptr, length)
	return slot
}
