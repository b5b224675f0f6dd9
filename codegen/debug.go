package codegen

import (
	"lowerc/common"
	"lowerc/ir"
	"lowerc/report"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// debugInfo builds the debug metadata of a module.  Every record is created
// at most once: scopes, files, types, and locations are all cached.
type debugInfo struct {
	g *Generator

	cu   *metadata.DICompileUnit
	file *metadata.DIFile

	files       map[*ir.SourceFile]*metadata.DIFile
	scopes      map[*ir.Scope]metadata.Field
	subprograms map[*ir.Function]*metadata.DISubprogram
	types       map[types.Type]metadata.Field
	locs        map[diLocKey]*metadata.DILocation

	globals []metadata.Field

	// emptyExpr is the expression shared by every variable declaration.
	emptyExpr *metadata.DIExpression

	// nextID is the ID given to the next metadata definition.
	nextID int64
}

type diLocKey struct {
	line, col int
	scope     metadata.Field
}

func newDebugInfo(g *Generator) *debugInfo {
	d := &debugInfo{
		g:           g,
		files:       make(map[*ir.SourceFile]*metadata.DIFile),
		scopes:      make(map[*ir.Scope]metadata.Field),
		subprograms: make(map[*ir.Function]*metadata.DISubprogram),
		types:       make(map[types.Type]metadata.Field),
		locs:        make(map[diLocKey]*metadata.DILocation),
	}

	root := &ir.SourceFile{Name: g.prog.Name}
	if len(g.prog.Files) > 0 {
		root = g.prog.Files[0]
	}

	d.file = d.fileOf(root)

	d.cu = &metadata.DICompileUnit{
		MetadataID:   -1,
		Distinct:     true,
		Language:     enum.DwarfLangC99,
		File:         d.file,
		Producer:     "lowerc " + common.LowercVersion,
		IsOptimized:  g.opts.Release,
		EmissionKind: enum.EmissionKindFullDebug,
	}
	d.add(d.cu)

	return d
}

// add registers a metadata definition with the module.
func (d *debugInfo) add(def metadata.Definition) {
	def.SetID(d.nextID)
	d.nextID++
	d.g.mod.MetadataDefs = append(d.g.mod.MetadataDefs, def)
}

func (d *debugInfo) tuple(fields ...metadata.Field) *metadata.Tuple {
	t := &metadata.Tuple{MetadataID: -1, Fields: fields}
	d.add(t)
	return t
}

// finalize completes the compile unit and registers it with the module.
func (d *debugInfo) finalize() {
	if len(d.globals) > 0 {
		d.cu.Globals = d.tuple(d.globals...)
	}

	i32 := func(x int64) metadata.Field {
		return &metadata.Value{Value: constant.NewInt(lltypes.I32, x)}
	}

	// Module flag behavior 2 is a warning on mismatch.
	dwarfVersion := d.tuple(i32(2), &metadata.String{Value: "Dwarf Version"}, i32(4))
	infoVersion := d.tuple(i32(2), &metadata.String{Value: "Debug Info Version"}, i32(3))

	if d.g.mod.NamedMetadataDefs == nil {
		d.g.mod.NamedMetadataDefs = make(map[string]*metadata.NamedDef)
	}

	d.g.mod.NamedMetadataDefs["llvm.dbg.cu"] = &metadata.NamedDef{
		Name:  "llvm.dbg.cu",
		Nodes: []metadata.Node{d.cu},
	}
	d.g.mod.NamedMetadataDefs["llvm.module.flags"] = &metadata.NamedDef{
		Name:  "llvm.module.flags",
		Nodes: []metadata.Node{dwarfVersion, infoVersion},
	}
}

// -----------------------------------------------------------------------------

func (d *debugInfo) fileOf(sf *ir.SourceFile) *metadata.DIFile {
	if sf == nil {
		return d.file
	}

	if file, ok := d.files[sf]; ok {
		return file
	}

	file := &metadata.DIFile{MetadataID: -1, Filename: sf.Name, Directory: sf.Dir}
	d.add(file)
	d.files[sf] = file
	return file
}

// scope returns the debug scope of an IR scope.
func (d *debugInfo) scope(s *ir.Scope) metadata.Field {
	if s == nil {
		return d.file
	}

	if ds, ok := d.scopes[s]; ok {
		return ds
	}

	var ds metadata.Field
	switch s.Kind {
	case ir.ScopeFnDef:
		if s.Fn == nil {
			report.ICE("function scope without a function")
		}

		ds = d.subprogram(s.Fn)
	case ir.ScopeDecls:
		ds = d.fileOf(s.FileOf())
		if st, ok := s.Container.(*types.StructType); ok && s.Parent != nil && !st.Incomplete {
			ds = d.typeOf(st)
		}
	case ir.ScopeCImport:
		ds = d.fileOf(s.FileOf())
	default:
		block := &metadata.DILexicalBlock{
			MetadataID: -1,
			Distinct:   true,
			Scope:      d.scope(s.Parent),
			File:       d.fileOf(s.FileOf()),
			Line:       int64(s.Line + 1),
			Column:     int64(s.Col + 1),
		}
		d.add(block)
		ds = block
	}

	d.scopes[s] = ds
	return ds
}

// subprogram returns the debug record of a function definition, attaching it
// to the function on first use.
func (d *debugInfo) subprogram(fn *ir.Function) *metadata.DISubprogram {
	if sp, ok := d.subprograms[fn]; ok {
		return sp
	}

	llFunc := d.g.funcDecl(fn)
	file := d.fileOf(fn.Scope.FileOf())

	sp := &metadata.DISubprogram{
		MetadataID:    -1,
		Distinct:      true,
		Scope:         file,
		Name:          fn.Name,
		LinkageName:   llFunc.Name(),
		File:          file,
		Line:          int64(fn.Line + 1),
		Type:          d.subroutineType(fn.Type),
		IsLocal:       fn.Internal,
		IsDefinition:  true,
		ScopeLine:     int64(fn.Line + 1),
		IsOptimized:   d.g.opts.Release,
		Unit:          d.cu,
		RetainedNodes: d.tuple(),
	}
	d.add(sp)
	d.subprograms[fn] = sp

	attachDbg(llFunc, sp)
	return sp
}

func (d *debugInfo) subroutineType(ft *types.FuncType) *metadata.DISubroutineType {
	fields := []metadata.Field{d.typeOf(ft.Return)}
	for _, param := range ft.Params {
		if d.g.hasBits(param.Type) {
			fields = append(fields, d.typeOf(param.Type))
		}
	}

	st := &metadata.DISubroutineType{MetadataID: -1, Types: d.tuple(fields...)}
	d.add(st)
	return st
}

// -----------------------------------------------------------------------------

// typeOf returns the debug type of typ.  Types without a more precise
// description are opaque basic types of the right size.
func (d *debugInfo) typeOf(typ types.Type) metadata.Field {
	if dt, ok := d.types[typ]; ok {
		return dt
	}

	basic := func(name string, bits uint64, enc enum.DwarfAttEncoding) metadata.Field {
		bt := &metadata.DIBasicType{MetadataID: -1, Tag: enum.DwarfTagBaseType, Name: name, Size: bits, Encoding: enc}
		d.add(bt)
		return bt
	}

	var dt metadata.Field
	switch t := typ.(type) {
	case *types.IntType:
		enc := enum.DwarfAttEncodingUnsigned
		if t.Signed {
			enc = enum.DwarfAttEncodingSigned
		}

		dt = basic(t.Repr(), uint64(t.Bits), enc)
	case *types.FloatType:
		dt = basic(t.Repr(), uint64(t.Bits), enum.DwarfAttEncodingFloat)
	case *types.BoolType:
		dt = basic("bool", 8, enum.DwarfAttEncodingBoolean)
	case *types.VoidType, *types.UnreachableType:
		ut := &metadata.DIBasicType{MetadataID: -1, Tag: enum.DwarfTagUnspecifiedType, Name: typ.Repr()}
		d.add(ut)
		dt = ut
	case *types.PointerType:
		pt := &metadata.DIDerivedType{
			MetadataID: -1,
			Tag:        enum.DwarfTagPointerType,
			Name:       t.Repr(),
			Size:       d.g.usize.BitSize,
			Align:      d.g.usize.BitSize,
		}
		d.add(pt)

		// Cached before the pointee so recursive types terminate.
		d.types[typ] = pt
		pt.BaseType = d.typeOf(t.Elem)
		return pt
	case *types.StructType:
		return d.structType(t)
	default:
		dt = basic(typ.Repr(), d.g.layoutOf(typ).Size*8, enum.DwarfAttEncodingUnsigned)
	}

	d.types[typ] = dt
	return dt
}

func (d *debugInfo) structType(st *types.StructType) metadata.Field {
	ct := &metadata.DICompositeType{
		MetadataID: -1,
		Tag:        enum.DwarfTagStructureType,
		Name:       st.Name,
		File:       d.file,
	}
	d.add(ct)
	d.types[st] = ct

	if st.Incomplete {
		return ct
	}

	l := d.g.layoutOf(st)
	ct.Size = l.Size * 8
	ct.Align = l.Align * 8

	var members []metadata.Field
	for i, field := range st.Fields {
		ndx := l.Fields[i]
		if ndx < 0 {
			continue
		}

		fl := d.g.layoutOf(field.Type)
		member := &metadata.DIDerivedType{
			MetadataID: -1,
			Tag:        enum.DwarfTagMember,
			Name:       field.Name,
			Scope:      ct,
			File:       d.file,
			BaseType:   d.typeOf(field.Type),
			Size:       fl.Size * 8,
			Align:      fl.Align * 8,
			Offset:     l.Offsets[ndx] * 8,
		}
		d.add(member)
		members = append(members, member)
	}

	ct.Elements = d.tuple(members...)
	return ct
}

// -----------------------------------------------------------------------------

// declareVar records a parameter or local in its function's debug record and
// ties it to its storage with a call to `llvm.dbg.declare` at the end of the
// current block.
func (d *debugInfo) declareVar(v *ir.Variable, storage value.Value) {
	sp := d.subprogram(d.g.fn)

	dv := &metadata.DILocalVariable{
		MetadataID: -1,
		Scope:      d.scope(v.Scope),
		Name:       v.Name,
		File:       d.fileOf(v.Scope.FileOf()),
		Line:       int64(v.Line + 1),
		Type:       d.typeOf(v.Type),
	}

	if v.IsParam() {
		dv.Arg = uint64(v.ArgIndex + 1)
	}

	d.add(dv)
	sp.RetainedNodes.Fields = append(sp.RetainedNodes.Fields, dv)

	if d.emptyExpr == nil {
		d.emptyExpr = &metadata.DIExpression{MetadataID: -1}
		d.add(d.emptyExpr)
	}

	declare := d.g.intrinsic("llvm.dbg.declare", lltypes.Void, lltypes.Metadata, lltypes.Metadata, lltypes.Metadata)
	call := d.g.block.NewCall(declare,
		&metadata.Value{Value: storage},
		&metadata.Value{Value: dv},
		&metadata.Value{Value: d.emptyExpr},
	)
	attachDbg(call, d.at(v.Line, v.Col, v.Scope))
}

// declareGlobal creates the debug record of a module-level variable.  glob is
// nil for variables which only exist at compile-time.
func (d *debugInfo) declareGlobal(gv *ir.GlobalVar, glob *llir.Global) {
	file := d.file
	if gv.Scope != nil {
		file = d.fileOf(gv.Scope.FileOf())
	}

	var typ metadata.Field
	if types.IsComptime(gv.Type) {
		typ = d.typeOf(types.Void)
	} else {
		typ = d.typeOf(gv.Type)
	}

	dv := &metadata.DIGlobalVariable{
		MetadataID:   -1,
		Scope:        d.scope(gv.Scope),
		Name:         gv.Name,
		File:         file,
		Line:         int64(gv.Line + 1),
		Type:         typ,
		IsLocal:      !gv.Export && !gv.Extern,
		IsDefinition: !gv.Extern,
	}
	d.add(dv)

	expr := &metadata.DIExpression{MetadataID: -1}
	d.add(expr)

	gve := &metadata.DIGlobalVariableExpression{MetadataID: -1, Var: dv, Expr: expr}
	d.add(gve)
	d.globals = append(d.globals, gve)

	if glob != nil {
		dv.LinkageName = glob.Name()
		attachDbg(glob, gve)
	}
}

// -----------------------------------------------------------------------------

// location returns the debug location of an instruction.
func (d *debugInfo) location(instr ir.Instruction) *metadata.DILocation {
	base := instr.Base()
	return d.at(base.Line, base.Col, base.Scope)
}

// at returns the debug location of a source position within scope.  A nil
// scope is the scope of the current function.
func (d *debugInfo) at(line, col int, scope *ir.Scope) *metadata.DILocation {
	if scope == nil {
		scope = d.g.fn.Scope
	}

	key := diLocKey{line: line, col: col, scope: d.scope(scope)}
	if loc, ok := d.locs[key]; ok {
		return loc
	}

	loc := &metadata.DILocation{
		MetadataID: -1,
		Line:       int64(line + 1),
		Column:     int64(col + 1),
		Scope:      key.scope,
	}
	d.add(loc)
	d.locs[key] = loc
	return loc
}

// stamp attaches the location of instr to everything generated since m.
func (d *debugInfo) stamp(m genMark, instr ir.Instruction) {
	loc := d.location(instr)

	stampBlock := func(b *llir.Block, from int) {
		for _, inst := range b.Insts[from:] {
			attachDbg(inst, loc)
		}

		if b.Term != nil {
			attachDbg(b.Term, loc)
		}
	}

	stampBlock(m.block, m.instrCount)
	for _, b := range d.g.llFunc.Blocks[m.blockCount:] {
		stampBlock(b, 0)
	}
}

// attachDbg sets the `!dbg` attachment of an LLVM value.
func attachDbg(x interface{}, node metadata.MDNode) {
	md := metadataOf(x)
	for _, a := range *md {
		if a.Name == "dbg" {
			a.Node = node
			return
		}
	}

	*md = append(*md, &metadata.Attachment{Name: "dbg", Node: node})
}

// metadataOf returns the metadata attachments of a value generated by lowerc.
func metadataOf(x interface{}) *llir.Metadata {
	switch v := x.(type) {
	case *llir.Func:
		return &v.Metadata
	case *llir.Global:
		return &v.Metadata
	case *llir.InstAdd:
		return &v.Metadata
	case *llir.InstFAdd:
		return &v.Metadata
	case *llir.InstSub:
		return &v.Metadata
	case *llir.InstFSub:
		return &v.Metadata
	case *llir.InstMul:
		return &v.Metadata
	case *llir.InstFMul:
		return &v.Metadata
	case *llir.InstUDiv:
		return &v.Metadata
	case *llir.InstSDiv:
		return &v.Metadata
	case *llir.InstFDiv:
		return &v.Metadata
	case *llir.InstURem:
		return &v.Metadata
	case *llir.InstSRem:
		return &v.Metadata
	case *llir.InstFRem:
		return &v.Metadata
	case *llir.InstFNeg:
		return &v.Metadata
	case *llir.InstShl:
		return &v.Metadata
	case *llir.InstLShr:
		return &v.Metadata
	case *llir.InstAShr:
		return &v.Metadata
	case *llir.InstAnd:
		return &v.Metadata
	case *llir.InstOr:
		return &v.Metadata
	case *llir.InstXor:
		return &v.Metadata
	case *llir.InstTrunc:
		return &v.Metadata
	case *llir.InstZExt:
		return &v.Metadata
	case *llir.InstSExt:
		return &v.Metadata
	case *llir.InstFPTrunc:
		return &v.Metadata
	case *llir.InstFPExt:
		return &v.Metadata
	case *llir.InstFPToUI:
		return &v.Metadata
	case *llir.InstFPToSI:
		return &v.Metadata
	case *llir.InstUIToFP:
		return &v.Metadata
	case *llir.InstSIToFP:
		return &v.Metadata
	case *llir.InstPtrToInt:
		return &v.Metadata
	case *llir.InstIntToPtr:
		return &v.Metadata
	case *llir.InstBitCast:
		return &v.Metadata
	case *llir.InstAlloca:
		return &v.Metadata
	case *llir.InstLoad:
		return &v.Metadata
	case *llir.InstStore:
		return &v.Metadata
	case *llir.InstGetElementPtr:
		return &v.Metadata
	case *llir.InstExtractValue:
		return &v.Metadata
	case *llir.InstInsertValue:
		return &v.Metadata
	case *llir.InstICmp:
		return &v.Metadata
	case *llir.InstFCmp:
		return &v.Metadata
	case *llir.InstPhi:
		return &v.Metadata
	case *llir.InstSelect:
		return &v.Metadata
	case *llir.InstCall:
		return &v.Metadata
	case *llir.TermRet:
		return &v.Metadata
	case *llir.TermBr:
		return &v.Metadata
	case *llir.TermCondBr:
		return &v.Metadata
	case *llir.TermSwitch:
		return &v.Metadata
	case *llir.TermUnreachable:
		return &v.Metadata
	}

	report.ICE("cannot attach debug information to %T", x)
	return nil
}
