package codegen

import (
	"testing"

	"lowerc/types"

	lltypes "github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSize(t *testing.T) {
	cases := map[uint64]uint64{1: 1, 8: 1, 9: 2, 16: 2, 24: 4, 32: 4, 33: 8, 64: 8, 65: 16, 128: 16}
	for bits, size := range cases {
		assert.Equal(t, size, storeSize(bits), "i%d", bits)
	}
}

func TestZeroSizeFieldsElided(t *testing.T) {
	st := &types.StructType{Name: "S", Fields: []*types.StructField{
		{Name: "a", Type: u8},
		{Name: "b", Type: u0},
		{Name: "c", Type: u8},
	}}

	g := NewGenerator(newProgram(), Options{Strip: true})
	l := g.layoutOf(st)

	assert.Equal(t, []int{0, -1, 1}, l.Fields)
	assert.True(t, l.ByRef)
	assert.Equal(t, uint64(2), l.Size)

	def, ok := l.Type.(*lltypes.StructType)
	require.True(t, ok)
	assert.Len(t, def.Fields, 2)
}

func TestAllZeroSizeStruct(t *testing.T) {
	st := &types.StructType{Name: "Unit", Fields: []*types.StructField{
		{Name: "a", Type: u0},
		{Name: "b", Type: types.Void},
	}}

	g := NewGenerator(newProgram(), Options{Strip: true})
	l := g.layoutOf(st)

	assert.False(t, l.HasBits())
	assert.Nil(t, l.Type)
	assert.Equal(t, []int{-1, -1}, l.Fields)
}

func TestFieldOffsets(t *testing.T) {
	st := &types.StructType{Name: "Padded", Fields: []*types.StructField{
		{Name: "a", Type: u8},
		{Name: "b", Type: i32},
		{Name: "c", Type: u8},
	}}

	g := NewGenerator(newProgram(), Options{Strip: true})
	l := g.layoutOf(st)

	assert.Equal(t, []uint64{0, 4, 8}, l.Offsets)
	assert.Equal(t, uint64(12), l.Size)
	assert.Equal(t, uint64(4), l.Align)
}

func TestLayoutCached(t *testing.T) {
	g := NewGenerator(newProgram(), Options{Strip: true})
	sl := &types.SliceType{Elem: u8}

	assert.Same(t, g.layoutOf(sl), g.layoutOf(sl))
}

func TestOptionalLayouts(t *testing.T) {
	g := NewGenerator(newProgram(), Options{Strip: true})

	ptr := &types.PointerType{Elem: i32}
	assert.False(t, g.layoutOf(&types.OptionalType{Child: ptr}).ByRef)
	assert.True(t, g.layoutOf(&types.OptionalType{Child: ptr}).Type.Equal(g.layoutOf(ptr).Type))

	l := g.layoutOf(&types.OptionalType{Child: i32})
	assert.True(t, l.ByRef)
	assert.True(t, l.Type.Equal(lltypes.NewStruct(lltypes.I32, lltypes.I1)))

	assert.True(t, g.layoutOf(&types.OptionalType{Child: types.Void}).Type.Equal(lltypes.I1))
}

func TestErrorUnionLayouts(t *testing.T) {
	g := NewGenerator(newProgram(), Options{Strip: true})
	tag := &types.IntType{Bits: 16}

	l := g.layoutOf(&types.ErrorUnionType{Child: types.Void, Tag: tag})
	assert.False(t, l.ByRef)
	assert.True(t, l.Type.Equal(lltypes.I16))

	l = g.layoutOf(&types.ErrorUnionType{Child: i64, Tag: tag})
	assert.True(t, l.ByRef)
	assert.Equal(t, uint64(16), l.Size)
	assert.Equal(t, []uint64{0, 8}, l.Offsets)
}

func TestEnumLayout(t *testing.T) {
	g := NewGenerator(newProgram(), Options{Strip: true})

	plain := &types.EnumType{Name: "Color", Tag: u8, Variants: []*types.EnumVariant{
		{Name: "Red", Value: 0},
		{Name: "Green", Value: 1},
	}}
	assert.False(t, g.layoutOf(plain).ByRef)

	tagged := &types.EnumType{Name: "Value", Tag: u8, Variants: []*types.EnumVariant{
		{Name: "Small", Value: 0, Payload: u8},
		{Name: "Big", Value: 1, Payload: i64},
		{Name: "None", Value: 2},
	}}

	l := g.layoutOf(tagged)
	assert.True(t, l.ByRef)
	assert.Equal(t, uint64(16), l.Size)
	assert.Equal(t, uint64(8), l.Align)
}

func TestSelfReferentialStruct(t *testing.T) {
	node := &types.StructType{Name: "Node"}
	node.Fields = []*types.StructField{
		{Name: "next", Type: &types.PointerType{Elem: node}},
		{Name: "value", Type: i32},
	}

	g := NewGenerator(newProgram(), Options{Strip: true})
	l := g.layoutOf(node)

	require.Equal(t, []int{0, 1}, l.Fields)
	def := l.Type.(*lltypes.StructType)
	assert.True(t, def.Fields[0].Equal(lltypes.NewPointer(def)))
}

func TestInfiniteStructIsInternal(t *testing.T) {
	loop := &types.StructType{Name: "Loop"}
	loop.Fields = []*types.StructField{{Name: "self", Type: &types.ArrayType{Elem: loop, Len: 1}}}

	g := NewGenerator(newProgram(), Options{Strip: true})
	assert.Panics(t, func() { g.layoutOf(loop) })
}

func TestIncompleteStructIsInternal(t *testing.T) {
	g := NewGenerator(newProgram(), Options{Strip: true})
	assert.Panics(t, func() { g.layoutOf(&types.StructType{Name: "Opaque", Incomplete: true}) })

	// Pointers to incomplete types are fine.
	assert.True(t, g.layoutOf(&types.PointerType{Elem: &types.StructType{Name: "Handle", Incomplete: true}}).HasBits())
}

func TestSignatureLowering(t *testing.T) {
	g := NewGenerator(newProgram(), Options{Strip: true})
	pair := &types.StructType{Name: "Pair", Fields: []*types.StructField{{Name: "a", Type: i64}, {Name: "b", Type: i64}}}

	sig := g.sigOf(&types.FuncType{
		Params: []*types.FuncParam{{Type: u0}, {Type: pair}, {Type: i32}},
		Return: pair,
	})

	assert.True(t, sig.SRet)
	assert.Equal(t, []int{-1, 1, 2}, sig.Params)
	assert.Len(t, sig.Type.Params, 3)

	ext := g.sigOf(&types.FuncType{Params: []*types.FuncParam{{Type: i32}}, Return: pair, Extern: true})
	assert.False(t, ext.SRet)
	assert.Equal(t, []int{0}, ext.Params)
}
