package codegen

import (
	"fmt"

	"lowerc/report"
	"lowerc/types"

	lltypes "github.com/llir/llvm/ir/types"
)

// Layout is the storage representation of a type.
type Layout struct {
	// Type is the LLVM type used to store values.  It is nil for types which
	// occupy no storage.
	Type lltypes.Type

	// ByRef indicates that values of the type are handled by a pointer to a
	// stack slot or global rather than as a first-class value.
	ByRef bool

	Size, Align uint64

	// Fields maps each logical field of a struct to its storage index.  Fields
	// which occupy no storage are elided and map to -1.
	Fields []int

	// Offsets are the byte offsets of the stored fields of an aggregate, in
	// storage order.
	Offsets []uint64

	inProgress bool
}

// HasBits returns whether values of the type occupy any storage.
func (l *Layout) HasBits() bool {
	return l.Size > 0
}

// Storage indices of the builtin aggregates.
const (
	sliceNdxPtr = 0
	sliceNdxLen = 1

	maybeNdxChild   = 0
	maybeNdxNonNull = 1

	errUnionNdxTag     = 0
	errUnionNdxPayload = 1

	enumNdxTag     = 0
	enumNdxPayload = 1
)

// maxIntAlign is the largest alignment given to an integer.
const maxIntAlign = 8

// layoutOf returns the layout of typ.  Layouts are computed on first request.
func (g *Generator) layoutOf(typ types.Type) *Layout {
	if l, ok := g.layouts[typ]; ok {
		if l.inProgress {
			report.ICE("type `%s` contains itself and has infinite size", typ.Repr())
		}

		return l
	}

	if st, ok := typ.(*types.StructType); ok {
		return g.structLayout(st)
	}

	if et, ok := typ.(*types.EnumType); ok {
		return g.enumLayout(et)
	}

	// Mark the type so cycles through other aggregates are detected.
	g.layouts[typ] = &Layout{inProgress: true}
	l := g.computeLayout(typ)
	g.layouts[typ] = l
	return l
}

// hasBits returns whether values of typ occupy any storage.
func (g *Generator) hasBits(typ types.Type) bool {
	if typ == nil || types.IsComptime(typ) {
		return false
	}

	return g.layoutOf(typ).HasBits()
}

// isByRef returns whether values of typ are handled by reference.
func (g *Generator) isByRef(typ types.Type) bool {
	return g.layoutOf(typ).ByRef
}

func (g *Generator) computeLayout(typ types.Type) *Layout {
	switch v := typ.(type) {
	case *types.IntType:
		if v.Bits == 0 {
			return &Layout{Align: 1}
		}

		size := storeSize(uint64(v.Bits))
		return &Layout{Type: lltypes.NewInt(uint64(v.Bits)), Size: size, Align: min(size, maxIntAlign)}
	case *types.FloatType:
		switch v.Bits {
		case 16:
			return &Layout{Type: lltypes.Half, Size: 2, Align: 2}
		case 32:
			return &Layout{Type: lltypes.Float, Size: 4, Align: 4}
		case 64:
			return &Layout{Type: lltypes.Double, Size: 8, Align: 8}
		case 80:
			return &Layout{Type: lltypes.X86_FP80, Size: 16, Align: 16}
		case 128:
			return &Layout{Type: lltypes.FP128, Size: 16, Align: 16}
		}

		report.ICE("unsupported float width: %d", v.Bits)
	case *types.BoolType:
		return &Layout{Type: lltypes.I1, Size: 1, Align: 1}
	case *types.VoidType, *types.UnreachableType:
		return &Layout{Align: 1}
	case *types.PointerType:
		if !g.pointeeHasBits(v.Elem) {
			return &Layout{Align: 1}
		}

		return g.pointerLayout(lltypes.NewPointer(g.pointeeType(v.Elem)))
	case *types.FuncType:
		return g.pointerLayout(lltypes.NewPointer(g.sigOf(v).Type))
	case *types.ArrayType:
		el := g.layoutOf(v.Elem)
		if !el.HasBits() || v.Len == 0 {
			return &Layout{Align: 1}
		}

		return &Layout{
			Type:  lltypes.NewArray(v.Len, el.Type),
			ByRef: true,
			Size:  el.Size * v.Len,
			Align: el.Align,
		}
	case *types.SliceType:
		ptr := g.pointerLayout(lltypes.NewPointer(g.pointeeType(v.Elem)))
		return g.aggregateLayout(lltypes.NewStruct(), ptr, g.layoutOf(g.usizeT))
	case *types.ErrorSetType:
		return g.layoutOf(v.Tag)
	case *types.ErrorUnionType:
		tl := g.layoutOf(v.Tag)
		cl := g.layoutOf(v.Child)
		if !cl.HasBits() {
			return tl
		}

		return g.aggregateLayout(lltypes.NewStruct(), tl, cl)
	case *types.OptionalType:
		if types.IsPointerLike(v.Child) {
			return g.layoutOf(v.Child)
		}

		bl := g.layoutOf(types.Bool)
		cl := g.layoutOf(v.Child)
		if !cl.HasBits() {
			return bl
		}

		return g.aggregateLayout(lltypes.NewStruct(), cl, bl)
	case *types.ComptimeType:
		report.ICE("layout requested for compile-time-only type `%s`", v.Repr())
	}

	report.ICE("layout requested for unknown type `%s`", typ.Repr())
	return nil
}

// pointerLayout returns the layout of a pointer of type pt.
func (g *Generator) pointerLayout(pt *lltypes.PointerType) *Layout {
	size := g.usize.BitSize / 8
	return &Layout{Type: pt, Size: size, Align: size}
}

// aggregateLayout lays out the given fields in order into st.
func (g *Generator) aggregateLayout(st *lltypes.StructType, fields ...*Layout) *Layout {
	l := &Layout{ByRef: true, Align: 1}

	for _, fl := range fields {
		l.Size = alignUp(l.Size, fl.Align)
		l.Offsets = append(l.Offsets, l.Size)
		st.Fields = append(st.Fields, fl.Type)
		l.Size += fl.Size
		l.Align = max(l.Align, fl.Align)
	}

	l.Size = alignUp(l.Size, l.Align)
	l.Type = st
	return l
}

// structLayout computes the layout of a struct, eliding its zero-size fields.
func (g *Generator) structLayout(st *types.StructType) *Layout {
	if st.Incomplete {
		report.ICE("layout requested for incomplete type `%s`", st.Name)
	}

	l := &Layout{inProgress: true, Fields: make([]int, len(st.Fields))}
	g.layouts[st] = l

	var retained []*Layout
	for i, field := range st.Fields {
		fl := g.layoutOf(field.Type)
		if !fl.HasBits() {
			l.Fields[i] = -1
			continue
		}

		l.Fields[i] = len(retained)
		retained = append(retained, fl)
	}

	l.inProgress = false
	if len(retained) == 0 {
		l.Align = 1
		return l
	}

	def := g.structDef(st, st.Name)
	agg := g.aggregateLayout(def, retained...)

	l.Type = def
	l.ByRef = true
	l.Size = agg.Size
	l.Align = agg.Align
	l.Offsets = agg.Offsets
	return l
}

// enumLayout computes the layout of an enum.  Enums with payloads store their
// tag followed by storage large enough for the largest payload.
func (g *Generator) enumLayout(et *types.EnumType) *Layout {
	g.layouts[et] = &Layout{inProgress: true}

	tl := g.layoutOf(et.Tag)

	var size, align uint64 = 0, 1
	var aligned *Layout
	for _, variant := range et.Variants {
		if variant.Payload == nil {
			continue
		}

		pl := g.layoutOf(variant.Payload)
		if !pl.HasBits() {
			continue
		}

		size = max(size, pl.Size)
		if aligned == nil || pl.Align > aligned.Align || (pl.Align == aligned.Align && pl.Size > aligned.Size) {
			aligned = pl
		}
	}

	if aligned == nil {
		l := *tl
		g.layouts[et] = &l
		return &l
	}

	align = aligned.Align
	size = alignUp(size, align)

	// The payload storage is the most aligned payload padded to the size of
	// the largest one.
	payload := &Layout{Type: aligned.Type, Size: size, Align: align}
	if aligned.Size < size {
		payload.Type = lltypes.NewStruct(aligned.Type, lltypes.NewArray(size-aligned.Size, lltypes.I8))
	}

	l := g.aggregateLayout(g.structDef(et, et.Name), tl, payload)
	g.layouts[et] = l
	return l
}

// enumPayloadType returns the storage type of the payload union of et.
func (g *Generator) enumPayloadType(et *types.EnumType) lltypes.Type {
	return g.layoutOf(et).Type.(*lltypes.StructType).Fields[enumNdxPayload]
}

// structDef returns the named LLVM struct used to store typ.  The definition
// is created before its fields are known so that it can be referred to by
// pointers inside of itself.
func (g *Generator) structDef(typ types.Type, name string) *lltypes.StructType {
	if def, ok := g.structDefs[typ]; ok {
		return def
	}

	if name == "" {
		name = "anon"
	}

	n := g.typeNames[name]
	g.typeNames[name] = n + 1
	if n > 0 {
		name = fmt.Sprintf("%s.%d", name, n)
	}

	def := &lltypes.StructType{}
	if st, ok := typ.(*types.StructType); ok && st.Incomplete {
		def.Opaque = true
	}

	g.mod.NewTypeDef(name, def)
	g.structDefs[typ] = def
	return def
}

// pointeeHasBits returns whether a pointer to typ has any bits.  Pointers to
// types whose layout is still being computed are assumed to.
func (g *Generator) pointeeHasBits(typ types.Type) bool {
	if st, ok := typ.(*types.StructType); ok && st.Incomplete {
		return true
	}

	if l, ok := g.layouts[typ]; ok && l.inProgress {
		return true
	}

	return g.hasBits(typ)
}

// pointeeType returns the LLVM type pointed to by pointers to typ.
func (g *Generator) pointeeType(typ types.Type) lltypes.Type {
	switch v := typ.(type) {
	case *types.StructType:
		return g.structDef(v, v.Name)
	case *types.EnumType:
		if l, ok := g.layouts[v]; ok && l.inProgress {
			return g.structDef(v, v.Name)
		}
	}

	if l := g.layoutOf(typ); l.Type != nil {
		return l.Type
	}

	return lltypes.I8
}

// -----------------------------------------------------------------------------

// funcSig is the lowered signature of a function type.
type funcSig struct {
	Type *lltypes.FuncType

	// SRet indicates the first parameter is a pointer to the return slot.
	SRet bool

	// Params maps each logical parameter to its generated index.  Parameters
	// which occupy no storage map to -1.
	Params []int
}

// sigOf returns the lowered signature of ft.
func (g *Generator) sigOf(ft *types.FuncType) *funcSig {
	if sig, ok := g.sigs[ft]; ok {
		return sig
	}

	sig := &funcSig{Params: make([]int, len(ft.Params))}

	var retType lltypes.Type = lltypes.Void
	var paramTypes []lltypes.Type

	if rl := g.layoutOf(ft.Return); rl.HasBits() {
		if rl.ByRef && !ft.Extern {
			sig.SRet = true
			paramTypes = append(paramTypes, lltypes.NewPointer(rl.Type))
		} else {
			retType = rl.Type
		}
	}

	for i, param := range ft.Params {
		pl := g.layoutOf(param.Type)
		if !pl.HasBits() {
			sig.Params[i] = -1
			continue
		}

		sig.Params[i] = len(paramTypes)
		if pl.ByRef {
			paramTypes = append(paramTypes, lltypes.NewPointer(pl.Type))
		} else {
			paramTypes = append(paramTypes, pl.Type)
		}
	}

	sig.Type = lltypes.NewFunc(retType, paramTypes...)
	sig.Type.Variadic = ft.Variadic
	g.sigs[ft] = sig
	return sig
}

// -----------------------------------------------------------------------------

// storeSize returns the number of bytes used to store an integer of the given
// bit width: the smallest power of two number of bytes that holds it.
func storeSize(bits uint64) uint64 {
	bytes := (bits + 7) / 8

	size := uint64(1)
	for size < bytes {
		size <<= 1
	}

	return size
}

func alignUp(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}

	return (n + align - 1) / align * align
}
