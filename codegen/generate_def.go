package codegen

import (
	"fmt"

	"lowerc/common"
	"lowerc/ir"
	"lowerc/report"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
)

// shim is an intrinsic the program may call as a builtin function.
type shim struct {
	// builtin is the name of the builtin in the program's reference counts.
	builtin string

	name   string
	ret    lltypes.Type
	params []lltypes.Type

	// backend shims are also used by generated code itself.
	backend bool
}

func (g *Generator) shims() []shim {
	return []shim{
		{builtin: "breakpoint", name: "llvm.debugtrap", ret: lltypes.Void, backend: g.opts.Test},
		{builtin: "trap", name: "llvm.trap", ret: lltypes.Void, backend: !g.opts.Test},
		{builtin: "return_address", name: "llvm.returnaddress", ret: i8Ptr, params: []lltypes.Type{lltypes.I32}},
		{builtin: "frame_address", name: "llvm.frameaddress", ret: i8Ptr, params: []lltypes.Type{lltypes.I32}},
		{
			builtin: "memcpy",
			name:    fmt.Sprintf("llvm.memcpy.p0i8.p0i8.i%d", g.usize.BitSize),
			ret:     lltypes.Void,
			params:  []lltypes.Type{i8Ptr, i8Ptr, g.usize, lltypes.I1},
			backend: true,
		},
		{
			builtin: "memset",
			name:    fmt.Sprintf("llvm.memset.p0i8.i%d", g.usize.BitSize),
			ret:     lltypes.Void,
			params:  []lltypes.Type{i8Ptr, lltypes.I8, g.usize, lltypes.I1},
			backend: true,
		},
	}
}

func (g *Generator) declareShims() {
	for _, s := range g.shims() {
		g.intrinsic(s.name, s.ret, s.params...)
	}
}

// discardUnusedShims removes the declarations of the shims which are neither
// referenced by the program nor used by the backend.
func (g *Generator) discardUnusedShims() {
	unused := make(map[*llir.Func]bool)
	for _, s := range g.shims() {
		if !s.backend && g.prog.BuiltinRefs[s.builtin] == 0 {
			unused[g.intrinsics[s.name]] = true
			delete(g.intrinsics, s.name)
		}
	}

	funcs := g.mod.Funcs[:0]
	for _, fn := range g.mod.Funcs {
		if !unused[fn] {
			funcs = append(funcs, fn)
		}
	}

	g.mod.Funcs = funcs
}

// trapFn returns the intrinsic safety checks trap with.
func (g *Generator) trapFn() *llir.Func {
	var fn *llir.Func
	if g.opts.Test {
		fn = g.intrinsic("llvm.debugtrap", lltypes.Void)
	} else {
		fn = g.intrinsic("llvm.trap", lltypes.Void)
		if !hasFuncAttr(fn, enum.FuncAttrNoReturn) {
			fn.FuncAttrs = append(fn.FuncAttrs, enum.FuncAttrNoReturn)
		}
	}

	return fn
}

func hasFuncAttr(fn *llir.Func, attr enum.FuncAttr) bool {
	for _, a := range fn.FuncAttrs {
		if a == attr {
			return true
		}
	}

	return false
}

// -----------------------------------------------------------------------------

// stringGlobal creates a private global holding the bytes of s and returns a
// slice constant over it.
func (g *Generator) stringGlobal(s string) constant.Constant {
	init := constant.NewCharArrayFromString(s)

	glob := g.mod.NewGlobalDef("", init)
	glob.Linkage = enum.LinkagePrivate
	glob.Immutable = true
	glob.UnnamedAddr = enum.UnnamedAddrUnnamedAddr

	return constant.NewStruct(
		g.stringType(),
		constant.NewBitCast(glob, i8Ptr),
		constant.NewInt(g.usize, int64(len(s))),
	)
}

// stringType returns the type of a slice of bytes.
func (g *Generator) stringType() *lltypes.StructType {
	return lltypes.NewStruct(i8Ptr, g.usize)
}

// genErrNameTable generates the table of error names indexed by tag.  It is
// only generated if some error name is queried at runtime.
func (g *Generator) genErrNameTable() {
	if !g.prog.UsesErrorNames || len(g.prog.ErrorNames) <= 1 {
		return
	}

	strType := g.stringType()
	entries := make([]constant.Constant, len(g.prog.ErrorNames))
	entries[0] = constant.NewUndef(strType)
	for i, name := range g.prog.ErrorNames[1:] {
		entries[i+1] = g.stringGlobal(name)
	}

	table := g.mod.NewGlobalDef("err_name_table", constant.NewArray(lltypes.NewArray(uint64(len(entries)), strType), entries...))
	table.Linkage = enum.LinkagePrivate
	table.Immutable = true
	table.UnnamedAddr = enum.UnnamedAddrUnnamedAddr
	g.errNameTable = table
}

// genGlobals generates the module-level variables.
func (g *Generator) genGlobals() {
	for _, gv := range g.prog.Globals {
		// Compile-time values only get debug information.
		if types.IsComptime(gv.Type) {
			if g.dbg != nil {
				g.dbg.declareGlobal(gv, nil)
			}

			continue
		}

		l := g.layoutOf(gv.Type)
		if !l.HasBits() {
			continue
		}

		var glob *llir.Global
		if gv.Extern {
			glob = g.mod.NewGlobal(gv.Name, l.Type)
			glob.Immutable = gv.Const
			glob.Align = llir.Align(l.Align)

			// References to the variable are made through its value.
			if gv.Value != ir.NoConst {
				g.consts.globals[gv.Value] = glob
			}
		} else {
			glob = g.constGlobal(gv.Value)
			glob.SetName(gv.Name)

			if gv.Export {
				glob.Linkage = enum.LinkageNone
			}

			if !gv.Const {
				glob.Immutable = false
				glob.UnnamedAddr = enum.UnnamedAddrNone
			}
		}

		if g.dbg != nil {
			g.dbg.declareGlobal(gv, glob)
		}
	}
}

// genTestTable generates the list of test functions: a slice of name and
// function pointer pairs exported for the test runner.
func (g *Generator) genTestTable() error {
	var tests []*ir.Function
	for _, fn := range g.prog.Definitions {
		if fn.IsTest {
			tests = append(tests, fn)
		}
	}

	if len(tests) == 0 {
		return ErrNoTests
	}

	fnPtr := lltypes.NewPointer(lltypes.NewFunc(lltypes.Void))
	entryType := lltypes.NewStruct(g.stringType(), fnPtr)

	entries := make([]constant.Constant, len(tests))
	for i, fn := range tests {
		var fnVal constant.Constant = g.funcDecl(fn)
		if !fnVal.Type().Equal(fnPtr) {
			fnVal = constant.NewBitCast(fnVal, fnPtr)
		}

		entries[i] = constant.NewStruct(entryType, g.stringGlobal(fn.Name), fnVal)
	}

	array := g.mod.NewGlobalDef("", constant.NewArray(lltypes.NewArray(uint64(len(entries)), entryType), entries...))
	array.Linkage = enum.LinkageInternal
	array.Immutable = true
	array.UnnamedAddr = enum.UnnamedAddrUnnamedAddr

	sliceType := lltypes.NewStruct(lltypes.NewPointer(entryType), g.usize)
	list := g.mod.NewGlobalDef(common.TestFnListSymbol, constant.NewStruct(
		sliceType,
		constant.NewBitCast(array, lltypes.NewPointer(entryType)),
		constant.NewInt(g.usize, int64(len(entries))),
	))
	list.Immutable = true
	list.UnnamedAddr = enum.UnnamedAddrUnnamedAddr

	return nil
}

// -----------------------------------------------------------------------------

// genPrototypes declares every function which is part of the build and sets
// its attributes.
func (g *Generator) genPrototypes() {
	for _, fn := range g.prog.Prototypes {
		if g.skipFunc(fn) {
			continue
		}

		llFunc := g.funcDecl(fn)
		if _, ok := g.intrinsics[fn.Name]; ok {
			continue
		}

		g.setParamAttrs(fn, llFunc)
		g.setFuncAttrs(fn, llFunc)
	}
}

func (g *Generator) setParamAttrs(fn *ir.Function, llFunc *llir.Func) {
	sig := g.sigOf(fn.Type)

	if sig.SRet {
		ret := llFunc.Params[0]
		ret.Attrs = append(ret.Attrs, llir.SRet{Typ: g.layoutOf(fn.Type.Return).Type}, enum.ParamAttrNonNull)
	} else if _, ok := fn.Type.Return.(*types.PointerType); ok && g.hasBits(fn.Type.Return) {
		llFunc.ReturnAttrs = append(llFunc.ReturnAttrs, enum.ReturnAttrNonNull)
	}

	for i, param := range fn.Type.Params {
		ndx := sig.Params[i]
		if ndx < 0 {
			continue
		}

		p := llFunc.Params[ndx]
		pt, isPtr := param.Type.(*types.PointerType)

		if param.NoAlias {
			p.Attrs = append(p.Attrs, enum.ParamAttrNoAlias)
		}

		if (isPtr && pt.Const) || g.isByRef(param.Type) {
			p.Attrs = append(p.Attrs, enum.ParamAttrReadOnly)
		}

		if isPtr {
			p.Attrs = append(p.Attrs, enum.ParamAttrNonNull)
		}
	}
}

func (g *Generator) setFuncAttrs(fn *ir.Function, llFunc *llir.Func) {
	switch fn.Inline {
	case ir.InlineAlways:
		llFunc.FuncAttrs = append(llFunc.FuncAttrs, enum.FuncAttrAlwaysInline)
	case ir.InlineNever:
		llFunc.FuncAttrs = append(llFunc.FuncAttrs, enum.FuncAttrNoInline)
	}

	if fn.Type.Naked {
		llFunc.FuncAttrs = append(llFunc.FuncAttrs, enum.FuncAttrNaked)
	}

	if _, ok := fn.Type.Return.(*types.UnreachableType); ok {
		llFunc.FuncAttrs = append(llFunc.FuncAttrs, enum.FuncAttrNoReturn)
	}

	if !fn.Type.Extern {
		llFunc.FuncAttrs = append(llFunc.FuncAttrs, enum.FuncAttrNoUnwind)
	}

	if fn.IsDefinition() && !g.opts.Release && fn.Inline != ir.InlineAlways {
		llFunc.FuncAttrs = append(llFunc.FuncAttrs, llir.AttrPair{Key: "frame-pointer", Value: "all"})
	}
}

// -----------------------------------------------------------------------------

// genFuncDef generates the body of a function definition.
func (g *Generator) genFuncDef(fn *ir.Function) {
	llFunc := g.funcDecl(fn)
	g.resetFuncState(fn, llFunc)
	if g.dbg != nil {
		g.dbg.subprogram(fn)
	}

	sig := g.sigOf(fn.Type)
	if sig.SRet {
		g.retPtr = llFunc.Params[0]
	}

	for _, bb := range fn.Blocks {
		g.blocks[bb] = g.appendBlock(bb.Name)
	}

	entry := g.blocks[fn.Blocks[0]]
	g.block = entry

	for _, instr := range fn.Temporaries {
		if l := g.tempLayout(instr); l != nil {
			slot := entry.NewAlloca(l.Type)
			slot.Align = llir.Align(l.Align)
			g.temps[instr] = slot
		}
	}

	type paramStore struct {
		param *llir.Param
		slot  *llir.InstAlloca
	}

	var stores []paramStore
	for _, v := range fn.Variables {
		if v.Inline || !g.hasBits(v.Type) {
			continue
		}

		l := g.layoutOf(v.Type)
		if v.IsParam() {
			param := llFunc.Params[sig.Params[v.ArgIndex]]
			if l.ByRef {
				g.vars[v] = param
			} else {
				slot := g.varSlot(v, l)
				stores = append(stores, paramStore{param: param, slot: slot})
			}
		} else if v.RefCount > 0 {
			g.varSlot(v, l)
		} else {
			if g.opts.CheckUnused {
				report.ReportWarning("unused variable `%s` in `%s` at %d:%d", v.Name, fn.Name, v.Line, v.Col)
			}

			continue
		}

		if g.dbg != nil {
			g.dbg.declareVar(v, g.vars[v])
		}
	}

	for _, ps := range stores {
		entry.NewStore(ps.param, ps.slot)
	}

	for _, bb := range fn.Blocks {
		g.genBlock(bb)
	}

	g.resolvePhis()
}

// varSlot allocates the stack slot of a variable.
func (g *Generator) varSlot(v *ir.Variable, l *Layout) *llir.InstAlloca {
	slot := g.block.NewAlloca(l.Type)
	slot.SetName(g.localName(v.Name))
	slot.Align = llir.Align(l.Align)
	g.vars[v] = slot
	return slot
}

// tempLayout returns the layout of the temporary instr requires.  It is nil if
// the instruction does not need one.
func (g *Generator) tempLayout(instr ir.Instruction) *Layout {
	var l *Layout
	switch v := instr.(type) {
	case *ir.Ref:
		if l = g.layoutOf(v.Value.Base().Type); l.ByRef {
			return nil
		}
	case *ir.Call:
		var ft *types.FuncType
		if v.Fn != nil {
			ft = v.Fn.Type
		} else if ft, _ = v.FnValue.Base().Type.(*types.FuncType); ft == nil {
			return nil
		}

		l = g.layoutOf(ft.Return)
	default:
		l = g.layoutOf(instr.Base().Type)
	}

	if !l.HasBits() {
		return nil
	}

	// Calls and results which are values themselves only need a slot when
	// their result is held by reference.
	if _, ok := instr.(*ir.Ref); !ok && !l.ByRef {
		return nil
	}

	return l
}
