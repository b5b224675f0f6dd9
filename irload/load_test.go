package irload

import (
	"testing"

	"lowerc/codegen"
	"lowerc/ir"
	"lowerc/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDemo(t *testing.T) *ir.Program {
	t.Helper()

	prog, err := Load("testdata/demo.yaml")
	require.NoError(t, err)
	return prog
}

func funcNamed(t *testing.T, prog *ir.Program, name string) *ir.Function {
	t.Helper()

	for _, fn := range prog.Prototypes {
		if fn.Name == name {
			return fn
		}
	}

	require.Failf(t, "missing function", "no function named `%s`", name)
	return nil
}

func TestLoadProgram(t *testing.T) {
	prog := loadDemo(t)

	assert.Equal(t, "demo", prog.Name)
	assert.Equal(t, 64, prog.Target.PointerBits)
	assert.Equal(t, "x86_64-unknown-linux-gnu", prog.Target.Triple)
	assert.Equal(t, []string{"", "NotFound", "Overflow"}, prog.ErrorNames)
	assert.Equal(t, 16, prog.ErrTag.Bits)

	require.Len(t, prog.Files, 1)
	assert.Equal(t, "demo.src", prog.Files[0].Name)

	assert.Len(t, prog.Types, 2)
	assert.Len(t, prog.Globals, 6)
	assert.Len(t, prog.Prototypes, 6)
	assert.Len(t, prog.Definitions, 5)

	require.NotNil(t, prog.Main)
	assert.Equal(t, "main", prog.Main.Name)

	abort := funcNamed(t, prog, "abort")
	assert.False(t, abort.IsDefinition())
	assert.True(t, abort.Type.Extern)
	assert.Equal(t, types.CallConvC, abort.Type.CallConv)
	assert.Equal(t, types.Unreachable, abort.Type.Return)

	assert.True(t, funcNamed(t, prog, "test_add").IsTest)
}

func TestLoadFunctionBody(t *testing.T) {
	prog := loadDemo(t)
	add := funcNamed(t, prog, "add")

	assert.Equal(t, []string{"a", "b"}, add.ParamNames)
	require.Len(t, add.Variables, 2)
	assert.Equal(t, 1, add.Variables[1].ArgIndex)
	assert.Equal(t, 15, add.Variables[1].Col)

	require.Len(t, add.Blocks, 1)
	instrs := add.Blocks[0].Instrs
	require.Len(t, instrs, 6)

	sum, ok := instrs[4].(*ir.BinOp)
	require.True(t, ok)
	assert.Equal(t, ir.BinOpAdd, sum.Op)
	assert.True(t, sum.SafetyCheck)
	assert.Same(t, instrs[1], sum.LHS)
	assert.Same(t, instrs[3], sum.RHS)
	assert.Equal(t, 1, sum.RefCount)
	assert.Equal(t, 11, sum.Col)

	ret, ok := instrs[5].(*ir.Return)
	require.True(t, ok)
	assert.Same(t, sum, ret.Value)
	assert.Equal(t, types.Void, ret.Type)
}

func TestLoadPhis(t *testing.T) {
	prog := loadDemo(t)
	sumTo := funcNamed(t, prog, "sum_to")

	require.Len(t, sumTo.Blocks, 4)
	loop, body := sumTo.Blocks[1], sumTo.Blocks[2]

	phi, ok := loop.Instrs[0].(*ir.Phi)
	require.True(t, ok)
	require.Len(t, phi.Incoming, 2)

	_, ok = phi.Incoming[0].Value.(*ir.Const)
	assert.True(t, ok)
	assert.Same(t, body, phi.Incoming[1].Block)
	assert.Same(t, body.Instrs[1], phi.Incoming[1].Value)
}

func TestLoadScopes(t *testing.T) {
	prog := loadDemo(t)
	main := funcNamed(t, prog, "main")

	var total *ir.Variable
	for _, v := range main.Variables {
		if v.Name == "total" {
			total = v
		}
	}

	require.NotNil(t, total)
	assert.False(t, total.IsParam())
	require.NotNil(t, total.Scope)
	assert.True(t, total.Scope.SafetySet)
	assert.True(t, total.Scope.SafetyOff)
	assert.Same(t, main.Scope, total.Scope.Parent)
	assert.Same(t, prog.Files[0], total.Scope.FileOf())

	instrs := main.Blocks[0].Instrs
	assert.Same(t, total.Scope, instrs[3].Base().Scope)
	assert.Same(t, main.Scope, instrs[2].Base().Scope)

	// Calls may need a temporary depending on their return layout.
	assert.Contains(t, main.Temporaries, instrs[0])
}

func TestLoadConstants(t *testing.T) {
	prog := loadDemo(t)

	var banner, shape *ir.GlobalVar
	for _, gv := range prog.Globals {
		switch gv.Name {
		case "banner":
			banner = gv
		case "default_shape":
			shape = gv
		}
	}

	require.NotNil(t, banner)
	slice, ok := prog.Consts.Get(banner.Value).Data.(*ir.ConstStruct)
	require.True(t, ok)
	require.Len(t, slice.Fields, 2)

	length := prog.Consts.Get(slice.Fields[1]).Data.(*ir.ConstInt)
	assert.Equal(t, int64(5), length.Value.Int64())

	ptr := prog.Consts.Get(slice.Fields[0]).Data.(*ir.ConstPointer)
	assert.Equal(t, 0, ptr.Index)

	text := prog.Consts.Get(ptr.Base).Data.(*ir.ConstArray)
	require.Len(t, text.Elems, 5)
	assert.Equal(t, int64('h'), prog.Consts.Get(text.Elems[0]).Data.(*ir.ConstInt).Value.Int64())

	require.NotNil(t, shape)
	dot := prog.Consts.Get(shape.Value).Data.(*ir.ConstEnum)
	assert.Equal(t, 1, dot.Variant)
	assert.NotEqual(t, ir.NoConst, dot.Payload)

	et := shape.Type.(*types.EnumType)
	assert.Equal(t, 8, et.Tag.Bits)
}

func TestLoadedProgramLowers(t *testing.T) {
	prog := loadDemo(t)

	mod, err := codegen.Generate(prog, codegen.Options{Strip: true})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, fn := range mod.Funcs {
		names[fn.Name()] = true
	}

	for _, name := range []string{"abort", "add", "sum_to", "check", "main"} {
		assert.True(t, names[name], name)
	}

	assert.False(t, names["test_add"])
}

func TestLoadedProgramLowersForTests(t *testing.T) {
	prog := loadDemo(t)

	mod, err := codegen.Generate(prog, codegen.Options{Strip: true, Test: true})
	require.NoError(t, err)

	var found bool
	for _, glob := range mod.Globals {
		if glob.Name() == "test_fn_list" {
			found = true
		}
	}

	assert.True(t, found)
}
