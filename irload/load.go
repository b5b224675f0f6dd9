// Package irload reads analyzed programs from their YAML form.
package irload

import (
	"bytes"
	"math/big"
	"os"
	"strings"

	"lowerc/ir"
	"lowerc/types"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultErrorTag is the error tag type used when a program does not name one.
const DefaultErrorTag = "u16"

// Load reads the program stored at path.
func Load(path string) (*ir.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading program")
	}

	prog, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading `%s`", path)
	}

	return prog, nil
}

// Parse decodes a program from its YAML form.  Unknown fields are rejected.
func Parse(data []byte) (*ir.Program, error) {
	var doc programDoc

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding program")
	}

	l := newLoader(&doc)
	if err := l.load(); err != nil {
		return nil, err
	}

	return l.prog, nil
}

// -----------------------------------------------------------------------------

// loader builds a program from its document.
type loader struct {
	doc  *programDoc
	prog *ir.Program
	tt   *typeTable

	// fileScopes holds the top-level declaration scope of each file.
	fileScopes []*ir.Scope

	consts   map[string]ir.ConstID
	funcs    map[string]*ir.Function
	builders map[*ir.Function]*ir.FuncBuilder
	errNames map[string]uint64
}

func newLoader(doc *programDoc) *loader {
	return &loader{
		doc:      doc,
		consts:   make(map[string]ir.ConstID),
		funcs:    make(map[string]*ir.Function),
		builders: make(map[*ir.Function]*ir.FuncBuilder),
		errNames: make(map[string]uint64),
	}
}

func (l *loader) load() error {
	doc := l.doc

	target := ir.Target{
		PointerBits: doc.Target.PointerBits,
		BigEndian:   doc.Target.BigEndian,
		OS:          doc.Target.OS,
		Arch:        doc.Target.Arch,
		Triple:      doc.Target.Triple,
		DataLayout:  doc.Target.DataLayout,
	}

	if target.PointerBits == 0 {
		target.PointerBits = 64
	}

	l.prog = &ir.Program{
		Name:           doc.Name,
		Target:         target,
		Consts:         ir.NewConstArena(),
		UsesErrorNames: doc.UsesErrorNames,
		BuiltinRefs:    doc.BuiltinRefs,
		ErrorCount:     doc.ErrorCount,
	}

	if l.prog.BuiltinRefs == nil {
		l.prog.BuiltinRefs = make(map[string]int)
	}

	if err := l.loadErrors(); err != nil {
		return err
	}

	for _, f := range doc.Files {
		file := &ir.SourceFile{Name: f.Name, Dir: f.Dir}
		l.prog.Files = append(l.prog.Files, file)
		l.fileScopes = append(l.fileScopes, &ir.Scope{Kind: ir.ScopeDecls, File: file})
	}

	steps := []func() error{
		l.loadTypes,
		l.declareFuncs,
		l.loadConsts,
		l.loadGlobals,
		l.loadBodies,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	if doc.Main != "" {
		main, ok := l.funcs[doc.Main]
		if !ok {
			return errors.Errorf("main function `%s` is not defined", doc.Main)
		}

		l.prog.Main = main
	}

	return nil
}

func (l *loader) loadErrors() error {
	tagExpr := l.doc.ErrorTag
	if tagExpr == "" {
		tagExpr = DefaultErrorTag
	}

	tag, err := newTypeTable(l.prog.Target.PointerBits, nil).resolve(tagExpr)
	if err != nil {
		return errors.Wrap(err, "error tag")
	}

	it, ok := tag.(*types.IntType)
	if !ok || it.Signed {
		return errors.Errorf("error tag must be an unsigned integer type, not `%s`", tagExpr)
	}

	l.prog.ErrTag = it
	l.tt = newTypeTable(l.prog.Target.PointerBits, it)

	// Entry 0 is always the reserved no-error tag.
	names := l.doc.ErrorNames
	if len(names) == 0 || names[0] != "" {
		names = append([]string{""}, names...)
	}

	for i, name := range names {
		if i == 0 {
			continue
		}

		if _, ok := l.errNames[name]; ok {
			return errors.Errorf("error `%s` declared multiple times", name)
		}

		l.errNames[name] = uint64(i)
	}

	l.prog.ErrorNames = names
	return nil
}

// fileScope returns the declaration scope of the file with index ndx.
func (l *loader) fileScope(ndx int) (*ir.Scope, error) {
	if len(l.fileScopes) == 0 {
		return nil, nil
	}

	if ndx < 0 || ndx >= len(l.fileScopes) {
		return nil, errors.Errorf("file index %d out of range", ndx)
	}

	return l.fileScopes[ndx], nil
}

// -----------------------------------------------------------------------------

func (l *loader) loadTypes() error {
	// Every named type is declared before any is resolved so that types may
	// refer to each other.
	for _, td := range l.doc.Types {
		if _, ok := l.tt.named[td.Name]; ok {
			return errors.Errorf("type `%s` declared multiple times", td.Name)
		}

		switch td.Kind {
		case "struct":
			l.tt.named[td.Name] = &types.StructType{Name: td.Name, Incomplete: td.Incomplete}
		case "enum":
			l.tt.named[td.Name] = &types.EnumType{Name: td.Name}
		default:
			return errors.Errorf("type `%s` has unknown kind `%s`", td.Name, td.Kind)
		}

		l.prog.Types = append(l.prog.Types, l.tt.named[td.Name])
	}

	for _, td := range l.doc.Types {
		var err error
		switch t := l.tt.named[td.Name].(type) {
		case *types.StructType:
			err = l.fillStruct(t, &td)
		case *types.EnumType:
			err = l.fillEnum(t, &td)
		}

		if err != nil {
			return errors.Wrapf(err, "in type `%s`", td.Name)
		}
	}

	return nil
}

func (l *loader) fillStruct(st *types.StructType, td *typeDoc) error {
	for _, fd := range td.Fields {
		ft, err := l.tt.resolve(fd.Type)
		if err != nil {
			return errors.Wrapf(err, "field `%s`", fd.Name)
		}

		st.Fields = append(st.Fields, &types.StructField{Name: fd.Name, Type: ft})
	}

	return nil
}

func (l *loader) fillEnum(et *types.EnumType, td *typeDoc) error {
	var maxValue uint64
	for i, vd := range td.Variants {
		variant := &types.EnumVariant{Name: vd.Name, Value: uint64(i)}
		if vd.Value != nil {
			variant.Value = *vd.Value
		}

		if vd.Payload != "" {
			pt, err := l.tt.resolve(vd.Payload)
			if err != nil {
				return errors.Wrapf(err, "variant `%s`", vd.Name)
			}

			variant.Payload = pt
		}

		maxValue = max(maxValue, variant.Value)
		et.Variants = append(et.Variants, variant)
	}

	if td.Tag == "" {
		et.Tag = &types.IntType{Bits: tagBits(maxValue)}
		return nil
	}

	tag, err := l.tt.resolve(td.Tag)
	if err != nil {
		return err
	}

	it, ok := tag.(*types.IntType)
	if !ok {
		return errors.Errorf("enum tag must be an integer type, not `%s`", td.Tag)
	}

	et.Tag = it
	return nil
}

// tagBits returns the width of the smallest standard unsigned integer which
// can hold v.
func tagBits(v uint64) int {
	for _, bits := range []int{8, 16, 32} {
		if v < 1<<bits {
			return bits
		}
	}

	return 64
}

// -----------------------------------------------------------------------------

var callConvs = map[string]types.CallConv{
	"":     types.CallConvUnspecified,
	"c":    types.CallConvC,
	"fast": types.CallConvFast,
	"cold": types.CallConvCold,
}

var inlineModes = map[string]ir.InlineMode{
	"":       ir.InlineAuto,
	"auto":   ir.InlineAuto,
	"always": ir.InlineAlways,
	"never":  ir.InlineNever,
}

// declareFuncs creates every function so that constants and calls can refer
// to functions declared later.
func (l *loader) declareFuncs() error {
	for i := range l.doc.Functions {
		fd := &l.doc.Functions[i]
		if _, ok := l.funcs[fd.Name]; ok {
			return errors.Errorf("function `%s` declared multiple times", fd.Name)
		}

		fn, err := l.declareFunc(fd)
		if err != nil {
			return errors.Wrapf(err, "in function `%s`", fd.Name)
		}

		l.funcs[fd.Name] = fn
		l.prog.Prototypes = append(l.prog.Prototypes, fn)
		if len(fd.Blocks) > 0 {
			l.prog.Definitions = append(l.prog.Definitions, fn)
		}
	}

	return nil
}

func (l *loader) declareFunc(fd *funcDoc) (*ir.Function, error) {
	ft := &types.FuncType{
		Variadic: fd.Variadic,
		Extern:   fd.Extern,
		Naked:    fd.Naked,
	}

	cc, ok := callConvs[fd.CallConv]
	if !ok {
		return nil, errors.Errorf("unknown calling convention `%s`", fd.CallConv)
	}
	ft.CallConv = cc

	for _, pd := range fd.Params {
		pt, err := l.tt.resolve(pd.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter `%s`", pd.Name)
		}

		ft.Params = append(ft.Params, &types.FuncParam{Type: pt, NoAlias: pd.NoAlias})
	}

	ft.Return = types.Void
	if fd.Return != "" {
		rt, err := l.tt.resolve(fd.Return)
		if err != nil {
			return nil, errors.Wrap(err, "return type")
		}

		ft.Return = rt
	}

	inline, ok := inlineModes[fd.Inline]
	if !ok {
		return nil, errors.Errorf("unknown inline mode `%s`", fd.Inline)
	}

	var fn *ir.Function
	if len(fd.Blocks) > 0 {
		if fd.Extern {
			return nil, errors.New("extern functions cannot have a body")
		}

		parent, err := l.fileScope(fd.File)
		if err != nil {
			return nil, err
		}

		b := ir.NewFuncBuilder(l.prog.Consts, fd.Name, ft, parent)
		for i, pd := range fd.Params {
			param := b.Param(pd.Name)
			param.Line, param.Col = pd.Line, pd.Col
			if param.ArgIndex != i {
				return nil, errors.Errorf("parameter `%s` declared out of order", pd.Name)
			}
		}

		switch fd.Safety {
		case "":
		case "on", "off":
			b.Fn.Scope.SetSafety(fd.Safety == "on")
		default:
			return nil, errors.Errorf("safety must be `on` or `off`, not `%s`", fd.Safety)
		}

		b.Fn.Scope.Line = fd.Line
		fn = b.Fn
		l.builders[fn] = b
	} else {
		fn = &ir.Function{Name: fd.Name, Type: ft}
		for _, pd := range fd.Params {
			fn.ParamNames = append(fn.ParamNames, pd.Name)
		}
	}

	fn.Internal = fd.Internal
	fn.Inline = inline
	fn.IsTest = fd.Test
	fn.Line = fd.Line
	return fn, nil
}

// -----------------------------------------------------------------------------

func (l *loader) loadConsts() error {
	// Constants are allocated before they are filled so that they may refer
	// to themselves and to each other.
	values := make([]*ir.ConstValue, len(l.doc.Consts))
	for i, cd := range l.doc.Consts {
		if _, ok := l.consts[cd.Name]; ok {
			return errors.Errorf("constant `%s` declared multiple times", cd.Name)
		}

		typ, err := l.tt.resolve(cd.Type)
		if err != nil {
			return errors.Wrapf(err, "in constant `%s`", cd.Name)
		}

		values[i] = &ir.ConstValue{Type: typ}
		l.consts[cd.Name] = l.prog.Consts.Add(values[i])
	}

	for i := range l.doc.Consts {
		if err := l.fillConst(values[i], &l.doc.Consts[i]); err != nil {
			return errors.Wrapf(err, "in constant `%s`", l.doc.Consts[i].Name)
		}
	}

	return nil
}

// constRef resolves a `@name` constant reference.
func (l *loader) constRef(ref string) (ir.ConstID, error) {
	name, ok := strings.CutPrefix(ref, "@")
	if !ok {
		return ir.NoConst, errors.Errorf("expected a constant reference, not `%s`", ref)
	}

	id, ok := l.consts[name]
	if !ok {
		return ir.NoConst, errors.Errorf("unknown constant `%s`", name)
	}

	return id, nil
}

func (l *loader) constRefs(refs []string) ([]ir.ConstID, error) {
	ids := make([]ir.ConstID, len(refs))
	for i, ref := range refs {
		id, err := l.constRef(ref)
		if err != nil {
			return nil, err
		}

		ids[i] = id
	}

	return ids, nil
}

func (l *loader) errorTag(name string) (uint64, error) {
	if name == "" {
		return 0, nil
	}

	tag, ok := l.errNames[name]
	if !ok {
		return 0, errors.Errorf("unknown error `%s`", name)
	}

	return tag, nil
}

func (l *loader) fillConst(cv *ir.ConstValue, cd *constDoc) error {
	switch {
	case cd.Undef:
		cv.Special = ir.ConstUndef
		return nil
	case cd.Zeroes:
		cv.Special = ir.ConstZeroes
		return nil
	}

	switch t := cv.Type.(type) {
	case *types.IntType:
		x, ok := new(big.Int).SetString(string(cd.Int), 0)
		if !ok {
			return errors.Errorf("invalid integer `%s`", cd.Int)
		}

		cv.Data = &ir.ConstInt{Value: x}
	case *types.FloatType:
		if cd.Float == nil {
			return errors.New("missing float value")
		}

		cv.Data = &ir.ConstFloat{Value: *cd.Float}
	case *types.BoolType:
		if cd.Bool == nil {
			return errors.New("missing bool value")
		}

		cv.Data = &ir.ConstBool{Value: *cd.Bool}
	case *types.StructType:
		if len(cd.Fields) != len(t.Fields) {
			return errors.Errorf("expected %d fields, got %d", len(t.Fields), len(cd.Fields))
		}

		fields, err := l.constRefs(cd.Fields)
		if err != nil {
			return err
		}

		cv.Data = &ir.ConstStruct{Fields: fields}
	case *types.ArrayType:
		if uint64(len(cd.Elems)) != t.Len {
			return errors.Errorf("expected %d elements, got %d", t.Len, len(cd.Elems))
		}

		elems, err := l.constRefs(cd.Elems)
		if err != nil {
			return err
		}

		cv.Data = &ir.ConstArray{Elems: elems}
	case *types.SliceType:
		return l.fillSlice(cv, t, cd)
	case *types.EnumType:
		return l.fillEnumConst(cv, t, cd)
	case *types.PointerType:
		if cd.Pointer == nil {
			return errors.New("missing pointer value")
		}

		base, err := l.constRef(cd.Pointer.Base)
		if err != nil {
			return err
		}

		cp := &ir.ConstPointer{Base: base, Index: -1}
		if cd.Pointer.Index != nil {
			cp.Index = *cd.Pointer.Index
		}

		cv.Data = cp
	case *types.FuncType:
		fn, ok := l.funcs[cd.Fn]
		if !ok {
			return errors.Errorf("unknown function `%s`", cd.Fn)
		}

		cv.Data = &ir.ConstFunc{Fn: fn}
	case *types.ErrorSetType:
		tag, err := l.errorTag(cd.Error)
		if err != nil {
			return err
		}

		cv.Data = &ir.ConstErrorTag{Value: tag}
	case *types.ErrorUnionType:
		tag, err := l.errorTag(cd.Error)
		if err != nil {
			return err
		}

		data := &ir.ConstErrorUnion{Err: tag, Payload: ir.NoConst}
		if cd.Payload != "" {
			if data.Payload, err = l.constRef(cd.Payload); err != nil {
				return err
			}
		}

		cv.Data = data
	case *types.OptionalType:
		data := &ir.ConstOptional{Child: ir.NoConst}
		if cd.Some != "" {
			child, err := l.constRef(cd.Some)
			if err != nil {
				return err
			}

			data.Child = child
		}

		cv.Data = data
	default:
		return errors.Errorf("constants of type `%s` are not supported", cv.Type.Repr())
	}

	return nil
}

// fillSlice fills a slice constant from either its pointer and length fields
// or its string text.
func (l *loader) fillSlice(cv *ir.ConstValue, st *types.SliceType, cd *constDoc) error {
	if cd.String == nil {
		if len(cd.Fields) != 2 {
			return errors.New("slice constants need a pointer and a length field")
		}

		fields, err := l.constRefs(cd.Fields)
		if err != nil {
			return err
		}

		cv.Data = &ir.ConstStruct{Fields: fields}
		return nil
	}

	if it, ok := st.Elem.(*types.IntType); !ok || it.Bits != 8 {
		return errors.Errorf("string constants must be byte slices, not `%s`", st.Repr())
	}

	text := *cd.String
	consts := l.prog.Consts

	bytes := make([]ir.ConstID, len(text))
	for i := 0; i < len(text); i++ {
		bytes[i] = consts.Int(st.Elem, int64(text[i]))
	}

	ptrType := &types.PointerType{Elem: st.Elem, Const: st.Const}

	var ptr ir.ConstID
	if len(text) == 0 {
		ptr = consts.Undef(ptrType)
	} else {
		arr := consts.Static(&types.ArrayType{Elem: st.Elem, Len: uint64(len(text))}, &ir.ConstArray{Elems: bytes})
		ptr = consts.Static(ptrType, &ir.ConstPointer{Base: arr, Index: 0})
	}

	usize := &types.IntType{Bits: l.prog.Target.PointerBits, PtrSized: true}
	cv.Data = &ir.ConstStruct{Fields: []ir.ConstID{ptr, consts.Int(usize, int64(len(text)))}}
	return nil
}

func (l *loader) fillEnumConst(cv *ir.ConstValue, et *types.EnumType, cd *constDoc) error {
	for i, variant := range et.Variants {
		if variant.Name != cd.Variant {
			continue
		}

		data := &ir.ConstEnum{Variant: i, Payload: ir.NoConst}
		if cd.Payload != "" {
			if variant.Payload == nil {
				return errors.Errorf("variant `%s` has no payload", variant.Name)
			}

			payload, err := l.constRef(cd.Payload)
			if err != nil {
				return err
			}

			data.Payload = payload
		}

		cv.Data = data
		return nil
	}

	return errors.Errorf("`%s` has no variant `%s`", et.Name, cd.Variant)
}

// -----------------------------------------------------------------------------

func (l *loader) loadGlobals() error {
	for _, gd := range l.doc.Globals {
		typ, err := l.tt.resolve(gd.Type)
		if err != nil {
			return errors.Wrapf(err, "in global `%s`", gd.Name)
		}

		scope, err := l.fileScope(gd.File)
		if err != nil {
			return errors.Wrapf(err, "in global `%s`", gd.Name)
		}

		gv := &ir.GlobalVar{
			Name:   gd.Name,
			Type:   typ,
			Value:  ir.NoConst,
			Extern: gd.Extern,
			Export: gd.Export,
			Const:  gd.Const,
			Scope:  scope,
			Line:   gd.Line,
		}

		switch {
		case gd.Extern && gd.Value != "":
			return errors.Errorf("extern global `%s` cannot have a value", gd.Name)
		case gd.Value != "":
			if gv.Value, err = l.constRef(gd.Value); err != nil {
				return errors.Wrapf(err, "in global `%s`", gd.Name)
			}
		case !gd.Extern && !types.IsComptime(typ):
			gv.Value = l.prog.Consts.Undef(typ)
		}

		l.prog.Globals = append(l.prog.Globals, gv)
	}

	return nil
}
