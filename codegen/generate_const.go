package codegen

import (
	"math/big"

	"lowerc/ir"
	"lowerc/report"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// constCache stores the lowered forms of constants.  Each slot of a constant
// is filled at most once.
type constCache struct {
	reprs   map[ir.ConstID]lltypes.Type
	values  map[ir.ConstID]constant.Constant
	globals map[ir.ConstID]*llir.Global
	addrs   map[ir.ConstID]constant.Constant

	// building marks the constants whose values are being generated.
	building map[ir.ConstID]bool

	// packing maps each packed representation to the indices of the stored
	// fields held by its members.  Padding members map to -1.
	packing map[*lltypes.StructType][]int
}

func newConstCache() *constCache {
	return &constCache{
		reprs:    make(map[ir.ConstID]lltypes.Type),
		values:   make(map[ir.ConstID]constant.Constant),
		globals:  make(map[ir.ConstID]*llir.Global),
		addrs:    make(map[ir.ConstID]constant.Constant),
		building: make(map[ir.ConstID]bool),
		packing:  make(map[*lltypes.StructType][]int),
	}
}

// constPart is one stored field of an aggregate constant: either a nested
// constant or a value known directly.
type constPart struct {
	id   ir.ConstID
	val  constant.Constant
	size uint64
}

// constParts returns the stored fields of an aggregate constant and their
// byte offsets.
func (g *Generator) constParts(cv *ir.ConstValue, l *Layout) ([]constPart, []uint64) {
	nested := func(id ir.ConstID) constPart {
		return constPart{id: id, size: g.layoutOf(g.prog.Consts.Get(id).Type).Size}
	}

	direct := func(val constant.Constant, fl *Layout) constPart {
		return constPart{id: ir.NoConst, val: val, size: fl.Size}
	}

	switch t := cv.Type.(type) {
	case *types.ArrayType:
		data := cv.Data.(*ir.ConstArray)
		el := g.layoutOf(t.Elem)

		parts := make([]constPart, len(data.Elems))
		offsets := make([]uint64, len(data.Elems))
		for i, elem := range data.Elems {
			parts[i] = nested(elem)
			offsets[i] = uint64(i) * el.Size
		}

		return parts, offsets
	case *types.StructType:
		data := cv.Data.(*ir.ConstStruct)

		var parts []constPart
		for i, field := range data.Fields {
			if l.Fields[i] >= 0 {
				parts = append(parts, nested(field))
			}
		}

		return parts, l.Offsets
	case *types.SliceType:
		data := cv.Data.(*ir.ConstStruct)
		return []constPart{nested(data.Fields[sliceNdxPtr]), nested(data.Fields[sliceNdxLen])}, l.Offsets
	case *types.EnumType:
		data := cv.Data.(*ir.ConstEnum)
		variant := t.Variants[data.Variant]
		st := l.Type.(*lltypes.StructType)

		tl := g.layoutOf(t.Tag)
		parts := []constPart{direct(g.intConst(tl.Type, new(big.Int).SetUint64(variant.Value)), tl)}

		if variant.Payload != nil && data.Payload != ir.NoConst && g.hasBits(variant.Payload) {
			parts = append(parts, nested(data.Payload))
		} else {
			parts = append(parts, constPart{
				id:   ir.NoConst,
				val:  zeroValue(st.Fields[enumNdxPayload]),
				size: l.Size - l.Offsets[enumNdxPayload],
			})
		}

		return parts, l.Offsets
	case *types.ErrorUnionType:
		data := cv.Data.(*ir.ConstErrorUnion)

		tl := g.layoutOf(t.Tag)
		parts := []constPart{direct(g.intConst(tl.Type, new(big.Int).SetUint64(data.Err)), tl)}

		if data.Err == 0 && data.Payload != ir.NoConst {
			parts = append(parts, nested(data.Payload))
		} else {
			cl := g.layoutOf(t.Child)
			parts = append(parts, direct(zeroValue(cl.Type), cl))
		}

		return parts, l.Offsets
	case *types.OptionalType:
		data := cv.Data.(*ir.ConstOptional)
		bl := g.layoutOf(types.Bool)

		if data.Child == ir.NoConst {
			cl := g.layoutOf(t.Child)
			return []constPart{direct(zeroValue(cl.Type), cl), direct(constant.False, bl)}, l.Offsets
		}

		return []constPart{nested(data.Child), direct(constant.True, bl)}, l.Offsets
	}

	report.ICE("constant of type `%s` is not an aggregate", cv.Type.Repr())
	return nil, nil
}

// -----------------------------------------------------------------------------

// constRepr returns the LLVM type of the value of a constant.  This is the
// layout type of the constant's type unless the constant contains an enum
// whose active payload is narrower than the enum's payload storage: such
// constants are represented by packed structs with explicit padding.  The
// representation of pointers is always their layout type: the pass does not
// look through them.
func (g *Generator) constRepr(id ir.ConstID) lltypes.Type {
	if repr, ok := g.consts.reprs[id]; ok {
		return repr
	}

	cv := g.prog.Consts.Get(id)
	l := g.layoutOf(cv.Type)

	repr := l.Type
	if l.HasBits() && l.ByRef && cv.Special == ir.ConstStatic {
		parts, offsets := g.constParts(cv, l)

		reprs := make([]lltypes.Type, len(parts))
		sizes := make([]uint64, len(parts))
		same := true
		for i, part := range parts {
			if part.id == ir.NoConst {
				reprs[i] = part.val.Type()
			} else {
				reprs[i] = g.constRepr(part.id)
			}

			sizes[i] = part.size
			same = same && reprs[i].Equal(storedFieldType(l.Type, i))
		}

		if !same {
			repr = g.packedRepr(l.Size, offsets, reprs, sizes)
		}
	}

	g.consts.reprs[id] = repr
	return repr
}

// storedFieldType returns the type of the stored field at ndx of an aggregate
// layout type.
func storedFieldType(typ lltypes.Type, ndx int) lltypes.Type {
	switch v := typ.(type) {
	case *lltypes.StructType:
		return v.Fields[ndx]
	case *lltypes.ArrayType:
		return v.ElemType
	}

	report.ICE("`%s` is not an aggregate type", typ)
	return nil
}

// packedRepr creates a packed struct placing each of the given members at
// its offset and padding the struct out to size.
func (g *Generator) packedRepr(size uint64, offsets []uint64, reprs []lltypes.Type, sizes []uint64) *lltypes.StructType {
	st := &lltypes.StructType{Packed: true}
	var slots []int

	pad := func(n uint64) {
		if n > 0 {
			st.Fields = append(st.Fields, lltypes.NewArray(n, lltypes.I8))
			slots = append(slots, -1)
		}
	}

	var at uint64
	for i, repr := range reprs {
		pad(offsets[i] - at)
		st.Fields = append(st.Fields, repr)
		slots = append(slots, i)
		at = offsets[i] + sizes[i]
	}

	pad(size - at)

	g.consts.packing[st] = slots
	return st
}

// -----------------------------------------------------------------------------

// constValue returns the lowered value of a constant.  It is nil for
// constants whose type has no bits.
func (g *Generator) constValue(id ir.ConstID) constant.Constant {
	if v, ok := g.consts.values[id]; ok {
		return v
	}

	cv := g.prog.Consts.Get(id)
	l := g.layoutOf(cv.Type)
	if !l.HasBits() {
		return nil
	}

	if g.consts.building[id] {
		report.ICE("constant %d contains itself by value", id)
	}

	g.consts.building[id] = true
	v := g.genConstValue(id, cv, l)
	delete(g.consts.building, id)

	g.consts.values[id] = v

	// A global created while the value was being built is initialized now.
	if glob, ok := g.consts.globals[id]; ok && glob.Init == nil {
		glob.Init = v
	}

	return v
}

func (g *Generator) genConstValue(id ir.ConstID, cv *ir.ConstValue, l *Layout) constant.Constant {
	repr := g.constRepr(id)

	switch cv.Special {
	case ir.ConstUndef:
		return constant.NewUndef(repr)
	case ir.ConstZeroes:
		return zeroValue(repr)
	}

	if l.ByRef {
		parts, _ := g.constParts(cv, l)

		vals := make([]constant.Constant, len(parts))
		for i, part := range parts {
			if part.id == ir.NoConst {
				vals[i] = part.val
			} else {
				vals[i] = g.constValue(part.id)
			}
		}

		return g.packConst(repr, vals)
	}

	switch t := cv.Type.(type) {
	case *types.IntType:
		return g.intConst(l.Type, cv.Data.(*ir.ConstInt).Value)
	case *types.FloatType:
		return constant.NewFloat(l.Type.(*lltypes.FloatType), cv.Data.(*ir.ConstFloat).Value)
	case *types.BoolType:
		return constant.NewBool(cv.Data.(*ir.ConstBool).Value)
	case *types.PointerType:
		return g.constPointer(cv.Data.(*ir.ConstPointer), l.Type)
	case *types.FuncType:
		return g.funcDecl(cv.Data.(*ir.ConstFunc).Fn)
	case *types.ErrorSetType:
		return g.intConst(l.Type, new(big.Int).SetUint64(cv.Data.(*ir.ConstErrorTag).Value))
	case *types.EnumType:
		variant := t.Variants[cv.Data.(*ir.ConstEnum).Variant]
		return g.intConst(l.Type, new(big.Int).SetUint64(variant.Value))
	case *types.ErrorUnionType:
		return g.intConst(l.Type, new(big.Int).SetUint64(cv.Data.(*ir.ConstErrorUnion).Err))
	case *types.OptionalType:
		data := cv.Data.(*ir.ConstOptional)
		if types.IsPointerLike(t.Child) {
			if data.Child == ir.NoConst {
				return zeroValue(l.Type)
			}

			return g.constValue(data.Child)
		}

		return constant.NewBool(data.Child != ir.NoConst)
	}

	report.ICE("unable to lower constant of type `%s`", cv.Type.Repr())
	return nil
}

// packConst builds an aggregate constant of type repr from the values of its
// stored fields.
func (g *Generator) packConst(repr lltypes.Type, vals []constant.Constant) constant.Constant {
	switch t := repr.(type) {
	case *lltypes.StructType:
		if slots, ok := g.consts.packing[t]; ok {
			fields := make([]constant.Constant, len(slots))
			for i, slot := range slots {
				if slot < 0 {
					fields[i] = constant.NewZeroInitializer(t.Fields[i])
				} else {
					fields[i] = vals[slot]
				}
			}

			return constant.NewStruct(t, fields...)
		}

		return constant.NewStruct(t, vals...)
	case *lltypes.ArrayType:
		return constant.NewArray(t, vals...)
	}

	report.ICE("`%s` is not an aggregate type", repr)
	return nil
}

// constPointer lowers a pointer constant to a value of type ptrType.
func (g *Generator) constPointer(cp *ir.ConstPointer, ptrType lltypes.Type) constant.Constant {
	addr := g.constAddr(cp.Base)

	if cp.Index >= 0 {
		base := g.prog.Consts.Get(cp.Base)
		if _, ok := base.Type.(*types.ArrayType); !ok {
			report.ICE("indexed pointer constant into non-array of type `%s`", base.Type.Repr())
		}

		gep := constant.NewGetElementPtr(
			g.layoutOf(base.Type).Type,
			addr,
			constant.NewInt(lltypes.I32, 0),
			constant.NewInt(g.usize, int64(cp.Index)),
		)
		gep.InBounds = true
		addr = gep
	}

	if !addr.Type().Equal(ptrType) {
		return constant.NewBitCast(addr, ptrType)
	}

	return addr
}

// -----------------------------------------------------------------------------

// constGlobal returns the global holding a constant, creating it if
// necessary.  The global may be created while the constant's value is still
// being built: its initializer is then set once the value is complete.
func (g *Generator) constGlobal(id ir.ConstID) *llir.Global {
	if glob, ok := g.consts.globals[id]; ok {
		return glob
	}

	l := g.layoutOf(g.prog.Consts.Get(id).Type)

	// Materialized constants are unnamed: llir numbers them when the module is
	// written.
	glob := g.mod.NewGlobal("", g.constRepr(id))
	glob.Linkage = enum.LinkageInternal
	glob.Immutable = true
	glob.UnnamedAddr = enum.UnnamedAddrUnnamedAddr
	glob.Align = llir.Align(l.Align)
	g.consts.globals[id] = glob

	if !g.consts.building[id] {
		glob.Init = g.constValue(id)
	}

	return glob
}

// constAddr returns the address of the global holding a constant as a
// pointer to the constant's layout type.
func (g *Generator) constAddr(id ir.ConstID) constant.Constant {
	if addr, ok := g.consts.addrs[id]; ok {
		return addr
	}

	glob := g.constGlobal(id)
	l := g.layoutOf(g.prog.Consts.Get(id).Type)

	var addr constant.Constant = glob
	if !glob.ContentType.Equal(l.Type) {
		addr = constant.NewBitCast(glob, lltypes.NewPointer(l.Type))
	}

	g.consts.addrs[id] = addr
	return addr
}

// constOperand returns a constant as an instruction operand: by-reference
// constants are operands by their address.
func (g *Generator) constOperand(id ir.ConstID) value.Value {
	l := g.layoutOf(g.prog.Consts.Get(id).Type)
	if !l.HasBits() {
		return nil
	}

	if l.ByRef {
		return g.constAddr(id)
	}

	return g.constValue(id)
}

// intConst creates an integer constant of typ.  Values which do not fit are
// truncated in two's complement.
func (g *Generator) intConst(typ lltypes.Type, x *big.Int) constant.Constant {
	it := typ.(*lltypes.IntType)

	mod := new(big.Int).Lsh(big.NewInt(1), uint(it.BitSize))
	v := new(big.Int).Mod(x, mod)

	// Values with the sign bit set are written as negative numbers.
	if it.BitSize > 1 && v.Bit(int(it.BitSize)-1) == 1 {
		v.Sub(v, mod)
	} else if it.BitSize == 1 {
		return constant.NewBool(v.Sign() != 0)
	}

	return &constant.Int{Typ: it, X: v}
}

// zeroValue returns the all-zero value of typ.
func zeroValue(typ lltypes.Type) constant.Constant {
	switch t := typ.(type) {
	case *lltypes.IntType:
		return constant.NewInt(t, 0)
	case *lltypes.FloatType:
		return constant.NewFloat(t, 0)
	case *lltypes.PointerType:
		return constant.NewNull(t)
	}

	return constant.NewZeroInitializer(typ)
}
