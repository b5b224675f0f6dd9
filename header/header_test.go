package header

import (
	"bytes"
	"testing"

	"lowerc/ir"
	"lowerc/types"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	u8    = &types.IntType{Bits: 8}
	i32   = &types.IntType{Bits: 32, Signed: true}
	usize = &types.IntType{Bits: 64, PtrSized: true}
	cInt  = &types.IntType{Bits: 32, Signed: true, CName: "int"}
	f64   = &types.FloatType{Bits: 64}
	cLD   = &types.FloatType{Bits: 80, CName: "long double"}
)

func fn(name string, ret types.Type, params ...interface{}) *ir.Function {
	f := &ir.Function{Name: name, Type: &types.FuncType{Return: ret}}
	for i := 0; i < len(params); i += 2 {
		f.ParamNames = append(f.ParamNames, params[i].(string))

		switch p := params[i+1].(type) {
		case *types.FuncParam:
			f.Type.Params = append(f.Type.Params, p)
		case types.Type:
			f.Type.Params = append(f.Type.Params, &types.FuncParam{Type: p})
		}
	}

	return f
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestHeader(t *testing.T) {
	internal := fn("helper", types.Void)
	internal.Internal = true

	test := fn("test_add", types.Void)
	test.IsTest = true

	prog := &ir.Program{Definitions: []*ir.Function{
		fn("add", i32, "a", i32, "b", i32),
		fn("is_ready", types.Bool),
		fn("copy", types.Void,
			"dst", &types.FuncParam{Type: &types.PointerType{Elem: u8}, NoAlias: true},
			"src", &types.PointerType{Elem: u8, Const: true},
			"len", usize,
		),
		internal,
		fn("scale", cLD, "x", cInt, "factor", f64),
		test,
		fn("find", &types.OptionalType{Child: &types.PointerType{Elem: u8}},
			"key", &types.OptionalType{Child: &types.PointerType{Elem: u8, Const: true}},
		),
		fn("panic_now", types.Unreachable),
	}}

	buf := &bytes.Buffer{}
	require.NoError(t, Write(buf, prog, "mathlib"))

	golden(t).Assert(t, "mathlib", buf.Bytes())
}

func TestHeaderWithoutIncludes(t *testing.T) {
	prog := &ir.Program{Definitions: []*ir.Function{
		fn("area", f64, "w", f64, "h", f64),
		fn("reset", types.Void),
	}}

	buf := &bytes.Buffer{}
	require.NoError(t, Write(buf, prog, "geo-kit"))

	golden(t).Assert(t, "geo_kit", buf.Bytes())
}

func TestUnsupportedTypes(t *testing.T) {
	point := &types.StructType{Name: "Point", Fields: []*types.StructField{{Name: "x", Type: i32}}}

	unsupported := []types.Type{
		point,
		&types.ArrayType{Elem: u8, Len: 4},
		&types.SliceType{Elem: u8},
		&types.ErrorUnionType{Child: i32, Tag: &types.IntType{Bits: 16}},
		&types.EnumType{Name: "Color", Tag: u8},
		&types.FuncType{Return: types.Void},
		&types.OptionalType{Child: i32},
		&types.IntType{Bits: 24},
		&types.FloatType{Bits: 16},
	}

	for _, typ := range unsupported {
		prog := &ir.Program{Definitions: []*ir.Function{fn("f", types.Void, "x", typ)}}

		err := Write(&bytes.Buffer{}, prog, "lib")
		assert.ErrorIs(t, err, ErrUnsupportedType, typ.Repr())
	}

	prog := &ir.Program{Definitions: []*ir.Function{fn("f", point)}}
	assert.ErrorIs(t, Write(&bytes.Buffer{}, prog, "lib"), ErrUnsupportedType)
}

func TestMacroName(t *testing.T) {
	assert.Equal(t, "MATHLIB", MacroName("mathlib"))
	assert.Equal(t, "MY_LIB_V2", MacroName("my-lib.v2"))
	assert.Equal(t, "_3D", MacroName("3d"))
}
