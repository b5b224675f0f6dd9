package irload

import (
	"testing"

	"lowerc/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeExpressions(t *testing.T) {
	tag := &types.IntType{Bits: 16}
	tt := newTypeTable(32, tag)

	resolve := func(expr string) types.Type {
		typ, err := tt.resolve(expr)
		require.NoError(t, err, expr)
		return typ
	}

	ptr := resolve("&const u8").(*types.PointerType)
	assert.True(t, ptr.Const)
	assert.Equal(t, 8, ptr.Elem.(*types.IntType).Bits)

	arr := resolve("[4]i32").(*types.ArrayType)
	assert.Equal(t, uint64(4), arr.Len)
	assert.True(t, arr.Elem.(*types.IntType).Signed)

	slice := resolve("[]const u8").(*types.SliceType)
	assert.True(t, slice.Const)

	opt := resolve("?&i32").(*types.OptionalType)
	assert.True(t, types.IsPointerLike(opt.Child))

	eu := resolve("%void").(*types.ErrorUnionType)
	assert.Same(t, tag, eu.Tag)
	assert.Equal(t, types.Void, eu.Child)

	ft := resolve("fn(i32, &u8, ...) bool").(*types.FuncType)
	assert.Len(t, ft.Params, 2)
	assert.True(t, ft.Variadic)
	assert.Equal(t, types.Bool, ft.Return)

	usize := resolve("usize").(*types.IntType)
	assert.Equal(t, 32, usize.Bits)
	assert.True(t, usize.PtrSized)

	assert.Equal(t, "int", resolve("c_int").(*types.IntType).CName)
	assert.Equal(t, 80, resolve("c_longdouble").(*types.FloatType).Bits)
	assert.True(t, types.IsComptime(resolve("comptime_int")))

	// Spelling a type the same way yields the same descriptor.
	assert.Same(t, resolve("[]const u8"), resolve(" []const u8 "))
}

func TestNamedTypes(t *testing.T) {
	tt := newTypeTable(64, &types.IntType{Bits: 16})
	node := &types.StructType{Name: "Node"}
	tt.named["Node"] = node

	typ, err := tt.resolve("&Node")
	require.NoError(t, err)
	assert.Same(t, node, typ.(*types.PointerType).Elem)

	// The keyword prefix of a name does not start a function type.
	tt.named["fnord"] = &types.StructType{Name: "fnord"}
	typ, err = tt.resolve("fnord")
	require.NoError(t, err)
	assert.Equal(t, "fnord", typ.Repr())
}

func TestTypeExpressionErrors(t *testing.T) {
	tt := newTypeTable(64, &types.IntType{Bits: 16})

	for _, expr := range []string{"", "&", "[x]i32", "[4", "Unknown", "i32 u8", "fn(i32", "f24"} {
		_, err := tt.resolve(expr)
		assert.Error(t, err, expr)
	}
}

func TestTagBits(t *testing.T) {
	assert.Equal(t, 8, tagBits(0))
	assert.Equal(t, 8, tagBits(255))
	assert.Equal(t, 16, tagBits(256))
	assert.Equal(t, 32, tagBits(1<<20))
	assert.Equal(t, 64, tagBits(1<<40))
}

const minimalFunc = `
functions:
  - name: f
    blocks:
      - name: entry
        instrs:
          - {id: 0, op: return}
`

func TestParseMinimal(t *testing.T) {
	prog, err := Parse([]byte(minimalFunc))
	require.NoError(t, err)

	assert.Equal(t, 64, prog.Target.PointerBits)
	assert.Equal(t, []string{""}, prog.ErrorNames)
	assert.NotNil(t, prog.BuiltinRefs)
	require.Len(t, prog.Definitions, 1)
	assert.Nil(t, prog.Definitions[0].Scope.FileOf())
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name, src, msg string
	}{
		{"unknown field", "nmae: x\n", "nmae"},
		{"bad error tag", "error-tag: i8\n", "unsigned"},
		{"duplicate error", "error-names: [A, A]\n", "declared multiple times"},
		{"unknown type kind", "types: [{name: T, kind: union}]\n", "unknown kind"},
		{"unknown field type", "types: [{name: T, kind: struct, fields: [{name: a, type: Q}]}]\n", "unknown type `Q`"},
		{"duplicate constant", "consts: [{name: a, type: i32, int: 1}, {name: a, type: i32, int: 2}]\n", "declared multiple times"},
		{"bad integer", "consts: [{name: a, type: i32, int: twelve}]\n", "invalid integer"},
		{"field count", "types: [{name: P, kind: struct, fields: [{name: a, type: i32}]}]\nconsts: [{name: p, type: P, fields: []}]\n", "expected 1 fields"},
		{"unknown constant", "globals: [{name: g, type: i32, value: \"@nope\"}]\n", "unknown constant `nope`"},
		{"unknown variant", "types: [{name: E, kind: enum, variants: [{name: A}]}]\nconsts: [{name: e, type: E, variant: B}]\n", "no variant `B`"},
		{"unknown main", "main: start\n", "main function `start`"},
		{"extern body", `
functions:
  - name: f
    extern: true
    blocks: [{name: entry, instrs: [{id: 0, op: return}]}]
`, "extern functions cannot have a body"},
		{"unknown op", `
functions:
  - name: f
    blocks: [{name: entry, instrs: [{id: 0, op: jump}]}]
`, "unknown instruction `jump`"},
		{"unknown block", `
functions:
  - name: f
    blocks: [{name: entry, instrs: [{id: 0, op: br, dest: exit}]}]
`, "unknown block `exit`"},
		{"unknown operand", `
functions:
  - name: f
    return: i32
    blocks: [{name: entry, instrs: [{id: 0, op: return, args: [7]}]}]
`, "unknown instruction 7"},
		{"arity", `
functions:
  - name: f
    blocks: [{name: entry, instrs: [{id: 0, op: bin_op, kind: add, args: [0], type: i32}]}]
`, "bin_op takes 2 operands"},
		{"duplicate id", `
functions:
  - name: f
    blocks: [{name: entry, instrs: [{id: 0, op: return}, {id: 0, op: return}]}]
`, "instruction 0 declared multiple times"},
		{"bad safety", `
functions:
  - name: f
    safety: maybe
    blocks: [{name: entry, instrs: [{id: 0, op: return}]}]
`, "safety must be"},
		{"unknown scope", `
functions:
  - name: f
    blocks: [{name: entry, instrs: [{id: 0, op: return, scope: inner}]}]
`, "unknown scope `inner`"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}
