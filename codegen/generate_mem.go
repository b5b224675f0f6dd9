package codegen

import (
	"fmt"

	"lowerc/ir"
	"lowerc/report"
	"lowerc/types"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// loadValue returns the value of typ stored at ptr.  By-reference values are
// handled by their address so no load is generated for them.
func (g *Generator) loadValue(ptr value.Value, typ types.Type) value.Value {
	l := g.layoutOf(typ)
	if !l.HasBits() {
		return nil
	}

	if l.ByRef {
		return ptr
	}

	return g.block.NewLoad(l.Type, ptr)
}

// storeValue stores val of typ to ptr.  By-reference values are copied.
func (g *Generator) storeValue(val, ptr value.Value, typ types.Type) {
	l := g.layoutOf(typ)
	if !l.HasBits() || val == nil {
		return
	}

	if l.ByRef {
		g.memcpy(ptr, val, l)
		return
	}

	g.block.NewStore(val, ptr)
}

// fieldPtr returns a pointer to the stored field ndx of the aggregate of type
// agg at ptr.
func (g *Generator) fieldPtr(ptr value.Value, agg lltypes.Type, ndx int) value.Value {
	gep := g.block.NewGetElementPtr(agg, ptr, constant.NewInt(lltypes.I32, 0), constant.NewInt(lltypes.I32, int64(ndx)))
	gep.InBounds = true
	return gep
}

// loadField loads the stored field ndx of the aggregate of type agg at ptr.
func (g *Generator) loadField(ptr value.Value, agg lltypes.Type, ndx int) value.Value {
	return g.block.NewLoad(storedFieldType(agg, ndx), g.fieldPtr(ptr, agg, ndx))
}

// bitcast converts v to typ if it is not already of that type.
func (g *Generator) bitcast(v value.Value, typ lltypes.Type) value.Value {
	if v.Type().Equal(typ) {
		return v
	}

	return g.block.NewBitCast(v, typ)
}

var i8Ptr = lltypes.NewPointer(lltypes.I8)

// memcpy copies a value with the layout l from src to dst.
func (g *Generator) memcpy(dst, src value.Value, l *Layout) {
	fn := g.intrinsic(
		fmt.Sprintf("llvm.memcpy.p0i8.p0i8.i%d", g.usize.BitSize),
		lltypes.Void, i8Ptr, i8Ptr, g.usize, lltypes.I1,
	)

	g.block.NewCall(fn,
		g.bitcast(dst, i8Ptr),
		g.bitcast(src, i8Ptr),
		constant.NewInt(g.usize, int64(l.Size)),
		constant.False,
	)
}

// memset fills the storage of a value with the layout l at dst with fill.
func (g *Generator) memset(dst value.Value, fill byte, l *Layout) {
	fn := g.intrinsic(
		fmt.Sprintf("llvm.memset.p0i8.i%d", g.usize.BitSize),
		lltypes.Void, i8Ptr, lltypes.I8, g.usize, lltypes.I1,
	)

	g.block.NewCall(fn,
		g.bitcast(dst, i8Ptr),
		constant.NewInt(lltypes.I8, int64(int8(fill))),
		constant.NewInt(g.usize, int64(l.Size)),
		constant.False,
	)
}

// undefFill is the byte uninitialized variables are filled with when safety is
// enabled.
const undefFill = 0xaa

// -----------------------------------------------------------------------------

func (g *Generator) genDeclVar(instr *ir.DeclVar) {
	v := instr.Var
	if v.RefCount == 0 || !g.hasBits(v.Type) {
		return
	}

	slot, ok := g.vars[v]
	if !ok {
		report.ICE("variable `%s` declared without a stack slot", v.Name)
	}

	special := ir.ConstUndef
	if instr.Init != nil {
		special = ir.ConstStatic
		if c, ok := instr.Init.(*ir.Const); ok {
			special = g.prog.Consts.Get(c.Value).Special
		}
	}

	l := g.layoutOf(v.Type)
	switch special {
	case ir.ConstStatic:
		g.storeValue(g.operand(instr.Init), slot, v.Type)
	case ir.ConstZeroes:
		g.memset(slot, 0, l)
	case ir.ConstUndef:
		if g.wantSafety(instr) {
			g.memset(slot, undefFill, l)
		}
	}
}

func (g *Generator) genVarPtr(instr *ir.VarPtr) value.Value {
	if instr.Var.Inline {
		report.ICE("reference to compile-time variable `%s`", instr.Var.Name)
	}

	if slot, ok := g.vars[instr.Var]; ok {
		return slot
	}

	if g.hasBits(instr.Var.Type) {
		report.ICE("variable `%s` has no stack slot", instr.Var.Name)
	}

	return nil
}

func (g *Generator) genLoadPtr(instr *ir.LoadPtr) value.Value {
	ptr := g.operand(instr.Ptr)
	if ptr == nil {
		return nil
	}

	return g.loadValue(ptr, instr.Type)
}

func (g *Generator) genStorePtr(instr *ir.StorePtr) {
	ptr := g.operand(instr.Ptr)
	if ptr == nil {
		return
	}

	g.storeValue(g.operand(instr.Value), ptr, instr.Value.Base().Type)
}

// -----------------------------------------------------------------------------

// genElemPtr generates a pointer to an element of an array, slice, or
// many-item pointer.  The operand is a pointer to the indexed value.
func (g *Generator) genElemPtr(instr *ir.ElemPtr) value.Value {
	pt, ok := instr.Array.Base().Type.(*types.PointerType)
	if !ok {
		report.ICE("element pointer into non-pointer of type `%s`", instr.Array.Base().Type.Repr())
	}

	if !g.hasBits(instr.Type) {
		return nil
	}

	ptr := g.operand(instr.Array)
	index := g.operand(instr.Index)
	safety := instr.SafetyCheck && g.wantSafety(instr)

	switch t := pt.Elem.(type) {
	case *types.ArrayType:
		if safety {
			g.boundsCheck(index, enum.IPredEQ, nil, enum.IPredULT, constant.NewInt(g.usize, int64(t.Len)))
		}

		gep := g.block.NewGetElementPtr(g.layoutOf(t).Type, ptr, constant.NewInt(g.usize, 0), index)
		gep.InBounds = true
		return gep
	case *types.PointerType:
		base := g.loadValue(ptr, t)
		gep := g.block.NewGetElementPtr(g.pointeeType(t.Elem), base, index)
		gep.InBounds = true
		return gep
	case *types.SliceType:
		st := g.layoutOf(t).Type
		if safety {
			length := g.loadField(ptr, st, sliceNdxLen)
			g.boundsCheck(index, enum.IPredEQ, nil, enum.IPredULT, length)
		}

		base := g.loadField(ptr, st, sliceNdxPtr)
		gep := g.block.NewGetElementPtr(g.pointeeType(t.Elem), base, index)
		gep.InBounds = true
		return gep
	}

	report.ICE("element pointer into value of type `%s`", pt.Elem.Repr())
	return nil
}

func (g *Generator) genStructFieldPtr(instr *ir.StructFieldPtr) value.Value {
	pt := instr.Struct.Base().Type.(*types.PointerType)
	st, ok := pt.Elem.(*types.StructType)
	if !ok {
		report.ICE("struct field pointer into value of type `%s`", pt.Elem.Repr())
	}

	l := g.layoutOf(st)
	ndx := l.Fields[instr.Field]
	if ndx < 0 {
		return nil
	}

	return g.fieldPtr(g.operand(instr.Struct), l.Type, ndx)
}

// genEnumFieldPtr generates a pointer to the payload of an enum: the payload
// storage reinterpreted as the variant's payload type.
func (g *Generator) genEnumFieldPtr(instr *ir.EnumFieldPtr) value.Value {
	pt := instr.Enum.Base().Type.(*types.PointerType)
	et, ok := pt.Elem.(*types.EnumType)
	if !ok {
		report.ICE("enum field pointer into value of type `%s`", pt.Elem.Repr())
	}

	payload := et.Variants[instr.Variant].Payload
	if payload == nil || !g.hasBits(payload) {
		return nil
	}

	l := g.layoutOf(et)
	ptr := g.fieldPtr(g.operand(instr.Enum), l.Type, enumNdxPayload)
	return g.bitcast(ptr, lltypes.NewPointer(g.layoutOf(payload).Type))
}

// genRef generates a pointer to a value.  By-value operands are spilled to
// the instruction's temporary.
func (g *Generator) genRef(instr *ir.Ref) value.Value {
	typ := instr.Value.Base().Type
	l := g.layoutOf(typ)
	if !l.HasBits() {
		return nil
	}

	val := g.operand(instr.Value)
	if l.ByRef {
		return val
	}

	slot := g.tempSlot(instr)
	g.block.NewStore(val, slot)
	return slot
}

// -----------------------------------------------------------------------------

func (g *Generator) genStructInit(instr *ir.StructInit) value.Value {
	st := instr.Type.(*types.StructType)
	l := g.layoutOf(st)
	if !l.HasBits() {
		return nil
	}

	slot := g.tempSlot(instr)
	for _, field := range instr.Fields {
		ndx := l.Fields[field.Field]
		if ndx < 0 {
			continue
		}

		g.storeValue(g.operand(field.Value), g.fieldPtr(slot, l.Type, ndx), st.Fields[field.Field].Type)
	}

	return slot
}

func (g *Generator) genContainerInitList(instr *ir.ContainerInitList) value.Value {
	at, ok := instr.Type.(*types.ArrayType)
	if !ok {
		report.ICE("container initializer of type `%s`", instr.Type.Repr())
	}

	l := g.layoutOf(at)
	if !l.HasBits() {
		return nil
	}

	slot := g.tempSlot(instr)
	for i, elem := range instr.Elems {
		gep := g.block.NewGetElementPtr(l.Type, slot, constant.NewInt(g.usize, 0), constant.NewInt(g.usize, int64(i)))
		gep.InBounds = true
		g.storeValue(g.operand(elem), gep, at.Elem)
	}

	return slot
}

func (g *Generator) genEnumTag(instr *ir.EnumTag) value.Value {
	et, ok := instr.Value.Base().Type.(*types.EnumType)
	if !ok {
		report.ICE("enum tag of value of type `%s`", instr.Value.Base().Type.Repr())
	}

	val := g.operand(instr.Value)
	l := g.layoutOf(et)
	if !l.ByRef {
		return val
	}

	return g.loadField(val, l.Type, enumNdxTag)
}

// -----------------------------------------------------------------------------

// nonNullBit returns whether the optional of type ot held by val is present.
func (g *Generator) nonNullBit(ot *types.OptionalType, val value.Value) value.Value {
	if types.IsPointerLike(ot.Child) {
		return g.block.NewICmp(enum.IPredNE, val, zeroValue(val.Type()))
	}

	l := g.layoutOf(ot)
	if !l.ByRef {
		// The child has no bits: the optional is just its flag.
		return val
	}

	return g.loadField(val, l.Type, maybeNdxNonNull)
}

func optionalOf(typ types.Type) *types.OptionalType {
	ot, ok := typ.(*types.OptionalType)
	if !ok {
		report.ICE("expected optional type, got `%s`", typ.Repr())
	}

	return ot
}

func (g *Generator) genTestNull(instr *ir.TestNull) value.Value {
	ot := optionalOf(instr.Value.Base().Type.(*types.PointerType).Elem)
	val := g.loadValue(g.operand(instr.Value), ot)
	return g.nonNullBit(ot, val)
}

// genUnwrapMaybe generates a pointer to the child of the optional pointed to
// by the operand.
func (g *Generator) genUnwrapMaybe(instr *ir.UnwrapMaybe) value.Value {
	ot := optionalOf(instr.Value.Base().Type.(*types.PointerType).Elem)
	ptr := g.operand(instr.Value)

	if instr.SafetyCheck && g.wantSafety(instr) {
		g.guard("UnwrapMaybe", g.nonNullBit(ot, g.loadValue(ptr, ot)))
	}

	if types.IsPointerLike(ot.Child) {
		return ptr
	}

	l := g.layoutOf(ot)
	if !l.ByRef {
		return nil
	}

	return g.fieldPtr(ptr, l.Type, maybeNdxChild)
}

// -----------------------------------------------------------------------------

func (g *Generator) genUnOp(instr *ir.UnOp) value.Value {
	typ := instr.Value.Base().Type
	val := g.operand(instr.Value)

	switch instr.Op {
	case ir.UnOpNegation, ir.UnOpNegationWrap:
		return g.genNegation(instr, val)
	case ir.UnOpBoolNot:
		return g.block.NewICmp(enum.IPredEQ, val, constant.False)
	case ir.UnOpBinNot:
		return g.block.NewXor(val, constant.NewInt(val.Type().(*lltypes.IntType), -1))
	case ir.UnOpDereference:
		if val == nil {
			return nil
		}

		return g.loadValue(val, typ.(*types.PointerType).Elem)
	case ir.UnOpUnwrapError:
		return g.genUnwrapError(instr, val)
	case ir.UnOpUnwrapMaybe:
		ot := optionalOf(typ)
		if g.wantSafety(instr) {
			g.guard("UnwrapMaybe", g.nonNullBit(ot, val))
		}

		if types.IsPointerLike(ot.Child) {
			return val
		}

		l := g.layoutOf(ot)
		if !l.ByRef {
			return nil
		}

		return g.loadValue(g.fieldPtr(val, l.Type, maybeNdxChild), ot.Child)
	}

	report.ICE("unknown unary operator: %d", instr.Op)
	return nil
}

// genUnwrapError generates the payload of an error union, trapping if it
// holds an error.
func (g *Generator) genUnwrapError(instr *ir.UnOp, val value.Value) value.Value {
	eut, ok := instr.Value.Base().Type.(*types.ErrorUnionType)
	if !ok {
		report.ICE("unwrapping error of value of type `%s`", instr.Value.Base().Type.Repr())
	}

	l := g.layoutOf(eut)
	if g.wantSafety(instr) {
		tag := val
		if l.ByRef {
			tag = g.loadField(val, l.Type, errUnionNdxTag)
		}

		g.guard("UnwrapErr", g.block.NewICmp(enum.IPredEQ, tag, zeroValue(tag.Type())))
	}

	if !l.ByRef {
		return nil
	}

	return g.loadValue(g.fieldPtr(val, l.Type, errUnionNdxPayload), eut.Child)
}

// -----------------------------------------------------------------------------

// genErrName generates a pointer to the entry of the error name table for an
// error tag.
func (g *Generator) genErrName(instr *ir.ErrName) value.Value {
	// The only error is the reserved "no error" tag.
	if len(g.prog.ErrorNames) == 1 {
		g.block.NewUnreachable()
		return nil
	}

	if g.errNameTable == nil {
		report.ICE("error name queried without an error name table")
	}

	val := g.operand(instr.Value)
	if g.wantSafety(instr) {
		it := val.Type().(*lltypes.IntType)
		g.boundsCheck(val,
			enum.IPredNE, constant.NewInt(it, 0),
			enum.IPredULT, constant.NewInt(it, int64(len(g.prog.ErrorNames))),
		)
	}

	gep := g.block.NewGetElementPtr(g.errNameTable.ContentType, g.errNameTable, constant.NewInt(g.usize, 0), val)
	gep.InBounds = true
	return gep
}
