package irload

import (
	"strconv"
	"strings"

	"lowerc/ir"
	"lowerc/types"

	"github.com/pkg/errors"
)

var binOps = map[string]ir.BinOpKind{
	"or":        ir.BinOpBoolOr,
	"and":       ir.BinOpBoolAnd,
	"eq":        ir.BinOpCmpEq,
	"ne":        ir.BinOpCmpNotEq,
	"lt":        ir.BinOpCmpLessThan,
	"gt":        ir.BinOpCmpGreaterThan,
	"le":        ir.BinOpCmpLessOrEq,
	"ge":        ir.BinOpCmpGreaterOrEq,
	"bit_or":    ir.BinOpBinOr,
	"bit_xor":   ir.BinOpBinXor,
	"bit_and":   ir.BinOpBinAnd,
	"shl":       ir.BinOpShl,
	"shl_wrap":  ir.BinOpShlWrap,
	"shr":       ir.BinOpShr,
	"add":       ir.BinOpAdd,
	"add_wrap":  ir.BinOpAddWrap,
	"sub":       ir.BinOpSub,
	"sub_wrap":  ir.BinOpSubWrap,
	"mul":       ir.BinOpMul,
	"mul_wrap":  ir.BinOpMulWrap,
	"div":       ir.BinOpDiv,
	"div_exact": ir.BinOpDivExact,
	"mod":       ir.BinOpMod,
}

var unOps = map[string]ir.UnOpKind{
	"neg":          ir.UnOpNegation,
	"neg_wrap":     ir.UnOpNegationWrap,
	"not":          ir.UnOpBoolNot,
	"bit_not":      ir.UnOpBinNot,
	"deref":        ir.UnOpDereference,
	"unwrap_error": ir.UnOpUnwrapError,
	"unwrap_maybe": ir.UnOpUnwrapMaybe,
}

var castOps = map[string]ir.CastOp{
	"noop":                  ir.CastNoop,
	"err_to_int":            ir.CastErrToInt,
	"maybe_wrap":            ir.CastMaybeWrap,
	"error_wrap":            ir.CastErrorWrap,
	"pure_error_wrap":       ir.CastPureErrorWrap,
	"ptr_to_int":            ir.CastPtrToInt,
	"int_to_ptr":            ir.CastIntToPtr,
	"ptr_reinterpret":       ir.CastPointerReinterpret,
	"widen_or_shorten":      ir.CastWidenOrShorten,
	"to_unknown_size_array": ir.CastToUnknownSizeArray,
	"resize_slice":          ir.CastResizeSlice,
	"bytes_to_slice":        ir.CastBytesToSlice,
	"int_to_float":          ir.CastIntToFloat,
	"float_to_int":          ir.CastFloatToInt,
	"bool_to_int":           ir.CastBoolToInt,
	"int_to_enum":           ir.CastIntToEnum,
	"enum_to_int":           ir.CastEnumToInt,
}

var comptimeOps = map[string]ir.ComptimeOp{
	"typeof":           ir.ComptimeTypeOf,
	"sizeof":           ir.ComptimeSizeOf,
	"compile_var":      ir.ComptimeCompileVar,
	"static_eval":      ir.ComptimeStaticEval,
	"set_debug_safety": ir.ComptimeSetDebugSafety,
	"field_ptr":        ir.ComptimeFieldPtr,
	"switch_target":    ir.ComptimeSwitchTarget,
	"compile_err":      ir.ComptimeCompileErr,
}

var scopeKinds = map[string]ir.ScopeKind{
	"block":    ir.ScopeBlock,
	"defer":    ir.ScopeDefer,
	"var_decl": ir.ScopeVarDecl,
	"loop":     ir.ScopeLoop,
	"decls":    ir.ScopeDecls,
	"c_import": ir.ScopeCImport,
}

// -----------------------------------------------------------------------------

func (l *loader) loadBodies() error {
	for i := range l.doc.Functions {
		fd := &l.doc.Functions[i]
		if len(fd.Blocks) == 0 {
			continue
		}

		bl := &bodyLoader{
			loader: l,
			b:      l.builders[l.funcs[fd.Name]],
			doc:    fd,
			scopes: make(map[string]*ir.Scope),
			vars:   make(map[string]*ir.Variable),
			blocks: make(map[string]*ir.BasicBlock),
			instrs: make(map[int]ir.Instruction),
		}

		if err := bl.load(); err != nil {
			return errors.Wrapf(err, "in function `%s`", fd.Name)
		}
	}

	return nil
}

// bodyLoader builds the body of a single function definition.
type bodyLoader struct {
	*loader

	b   *ir.FuncBuilder
	doc *funcDoc

	scopes map[string]*ir.Scope
	vars   map[string]*ir.Variable
	blocks map[string]*ir.BasicBlock
	instrs map[int]ir.Instruction
}

func (bl *bodyLoader) load() error {
	fn := bl.b.Fn

	for _, v := range fn.Variables {
		bl.vars[v.Name] = v
	}

	for _, sd := range bl.doc.Scopes {
		if err := bl.declareScope(&sd); err != nil {
			return errors.Wrapf(err, "scope `%s`", sd.Name)
		}
	}

	for _, ld := range bl.doc.Locals {
		if err := bl.declareLocal(&ld); err != nil {
			return errors.Wrapf(err, "local `%s`", ld.Name)
		}
	}

	bbs := make([]*ir.BasicBlock, len(bl.doc.Blocks))
	for i, bd := range bl.doc.Blocks {
		if _, ok := bl.blocks[bd.Name]; ok {
			return errors.Errorf("block `%s` declared multiple times", bd.Name)
		}

		bbs[i] = bl.b.Block(bd.Name)
		bl.blocks[bd.Name] = bbs[i]
	}

	// Instructions are created first and linked second since phis may refer
	// to values defined later in the function.
	for _, bd := range bl.doc.Blocks {
		for i := range bd.Instrs {
			id := &bd.Instrs[i]
			if _, ok := bl.instrs[id.ID]; ok {
				return errors.Errorf("instruction %d declared multiple times", id.ID)
			}

			instr, err := bl.newInstr(id)
			if err != nil {
				return errors.Wrapf(err, "instruction %d", id.ID)
			}

			bl.instrs[id.ID] = instr
		}
	}

	for i, bd := range bl.doc.Blocks {
		bl.b.SetBlock(bbs[i])

		for j := range bd.Instrs {
			id := &bd.Instrs[j]
			instr := bl.instrs[id.ID]

			if err := bl.link(instr, id); err != nil {
				return errors.Wrapf(err, "instruction %d", id.ID)
			}

			typ := types.Type(types.Void)
			if id.Type != "" {
				var err error
				if typ, err = bl.tt.resolve(id.Type); err != nil {
					return errors.Wrapf(err, "instruction %d", id.ID)
				}
			}

			bl.b.Emit(typ, ir.At(instr, id.Line, id.Col))
		}
	}

	return nil
}

func (bl *bodyLoader) declareScope(sd *scopeDoc) error {
	if _, ok := bl.scopes[sd.Name]; ok || sd.Name == "" {
		return errors.New("scope names must be unique and non-empty")
	}

	kind, ok := scopeKinds[sd.Kind]
	if !ok {
		return errors.Errorf("unknown scope kind `%s`", sd.Kind)
	}

	parent, err := bl.scope(sd.Parent)
	if err != nil {
		return err
	}

	scope := &ir.Scope{
		Kind:   kind,
		Parent: parent,
		File:   parent.File,
		Line:   sd.Line,
		Col:    sd.Col,
	}

	switch sd.Safety {
	case "":
	case "on", "off":
		scope.SetSafety(sd.Safety == "on")
	default:
		return errors.Errorf("safety must be `on` or `off`, not `%s`", sd.Safety)
	}

	bl.scopes[sd.Name] = scope
	return nil
}

// scope returns the named scope.  The empty name is the function scope.
func (bl *bodyLoader) scope(name string) (*ir.Scope, error) {
	if name == "" {
		return bl.b.Fn.Scope, nil
	}

	scope, ok := bl.scopes[name]
	if !ok {
		return nil, errors.Errorf("unknown scope `%s`", name)
	}

	return scope, nil
}

func (bl *bodyLoader) declareLocal(ld *localDoc) error {
	if _, ok := bl.vars[ld.Name]; ok {
		return errors.New("variable declared multiple times")
	}

	typ, err := bl.tt.resolve(ld.Type)
	if err != nil {
		return err
	}

	scope, err := bl.scope(ld.Scope)
	if err != nil {
		return err
	}

	v := bl.b.Local(ld.Name, typ)
	v.Scope = scope
	v.Line, v.Col = ld.Line, ld.Col
	v.Inline = ld.Inline

	bl.vars[ld.Name] = v
	return nil
}

func (bl *bodyLoader) variable(name string) (*ir.Variable, error) {
	v, ok := bl.vars[name]
	if !ok {
		return nil, errors.Errorf("unknown variable `%s`", name)
	}

	return v, nil
}

func (bl *bodyLoader) block(name string) (*ir.BasicBlock, error) {
	bb, ok := bl.blocks[name]
	if !ok {
		return nil, errors.Errorf("unknown block `%s`", name)
	}

	return bb, nil
}

// -----------------------------------------------------------------------------

// newInstr creates the instruction described by id without its operands.
func (bl *bodyLoader) newInstr(id *instrDoc) (ir.Instruction, error) {
	var instr ir.Instruction

	switch id.Op {
	case "return":
		instr = &ir.Return{}
	case "decl_var":
		instr = &ir.DeclVar{}
	case "bin_op":
		op, ok := binOps[id.Kind]
		if !ok {
			return nil, errors.Errorf("unknown binary operator `%s`", id.Kind)
		}

		instr = &ir.BinOp{Op: op, SafetyCheck: id.Check}
	case "cast":
		op, ok := castOps[id.Kind]
		if !ok {
			return nil, errors.Errorf("unknown cast `%s`", id.Kind)
		}

		instr = &ir.Cast{Op: op}
	case "unreachable":
		instr = &ir.Unreachable{}
	case "cond_br":
		instr = &ir.CondBr{}
	case "br":
		instr = &ir.Br{}
	case "un_op":
		op, ok := unOps[id.Kind]
		if !ok {
			return nil, errors.Errorf("unknown unary operator `%s`", id.Kind)
		}

		instr = &ir.UnOp{Op: op}
	case "load_ptr":
		instr = &ir.LoadPtr{}
	case "store_ptr":
		instr = &ir.StorePtr{}
	case "var_ptr":
		instr = &ir.VarPtr{}
	case "elem_ptr":
		instr = &ir.ElemPtr{SafetyCheck: id.Check}
	case "call":
		instr = &ir.Call{}
	case "struct_field_ptr":
		instr = &ir.StructFieldPtr{Field: id.Field}
	case "enum_field_ptr":
		instr = &ir.EnumFieldPtr{Variant: id.Variant}
	case "asm":
		instr = &ir.Asm{Template: id.Template, Clobbers: id.Clobbers, Volatile: id.Volatile}
	case "test_null":
		instr = &ir.TestNull{}
	case "unwrap_maybe":
		instr = &ir.UnwrapMaybe{SafetyCheck: id.Check}
	case "clz":
		instr = &ir.Clz{}
	case "ctz":
		instr = &ir.Ctz{}
	case "switch_br":
		instr = &ir.SwitchBr{}
	case "phi":
		instr = &ir.Phi{}
	case "ref":
		instr = &ir.Ref{}
	case "err_name":
		instr = &ir.ErrName{}
	case "struct_init":
		instr = &ir.StructInit{}
	case "container_init_list":
		instr = &ir.ContainerInitList{}
	case "enum_tag":
		instr = &ir.EnumTag{}
	default:
		op, ok := comptimeOps[id.Op]
		if !ok {
			return nil, errors.Errorf("unknown instruction `%s`", id.Op)
		}

		instr = &ir.Comptime{Op: op}
	}

	scope, err := bl.scope(id.Scope)
	if err != nil {
		return nil, err
	}

	instr.Base().Scope = scope
	return instr, nil
}

// operand resolves an instruction operand: a constant reference or the id of
// another instruction.
func (bl *bodyLoader) operand(ref scalar) (ir.Instruction, error) {
	if strings.HasPrefix(string(ref), "@") {
		cid, err := bl.constRef(string(ref))
		if err != nil {
			return nil, err
		}

		return bl.b.Const(cid), nil
	}

	n, err := strconv.Atoi(string(ref))
	if err != nil {
		return nil, errors.Errorf("invalid operand `%s`", ref)
	}

	instr, ok := bl.instrs[n]
	if !ok {
		return nil, errors.Errorf("unknown instruction %d", n)
	}

	return instr, nil
}

// link resolves the operands and references of instr.
func (bl *bodyLoader) link(instr ir.Instruction, id *instrDoc) error {
	args := make([]ir.Instruction, len(id.Args))
	for i, ref := range id.Args {
		op, err := bl.operand(ref)
		if err != nil {
			return err
		}

		args[i] = op
	}

	arity := func(lo, hi int) error {
		if len(args) < lo || len(args) > hi {
			if lo == hi {
				return errors.Errorf("%s takes %d operands, got %d", id.Op, lo, len(args))
			}

			return errors.Errorf("%s takes %d to %d operands, got %d", id.Op, lo, hi, len(args))
		}

		return nil
	}

	var err error
	switch v := instr.(type) {
	case *ir.Return:
		if err = arity(0, 1); err == nil && len(args) == 1 {
			v.Value = args[0]
		}
	case *ir.DeclVar:
		if v.Var, err = bl.variable(id.Var); err == nil {
			if err = arity(0, 1); err == nil && len(args) == 1 {
				v.Init = args[0]
			}
		}
	case *ir.BinOp:
		if err = arity(2, 2); err == nil {
			v.LHS, v.RHS = args[0], args[1]
		}
	case *ir.CondBr:
		if err = arity(1, 1); err == nil {
			v.Cond = args[0]
			if v.Then, err = bl.block(id.Then); err == nil {
				v.Else, err = bl.block(id.Else)
			}
		}
	case *ir.Br:
		err = arity(0, 0)
		if err == nil {
			v.Dest, err = bl.block(id.Dest)
		}
	case *ir.StorePtr:
		if err = arity(2, 2); err == nil {
			v.Ptr, v.Value = args[0], args[1]
		}
	case *ir.VarPtr:
		if err = arity(0, 0); err == nil {
			v.Var, err = bl.variable(id.Var)
		}
	case *ir.ElemPtr:
		if err = arity(2, 2); err == nil {
			v.Array, v.Index = args[0], args[1]
		}
	case *ir.Call:
		err = bl.linkCall(v, id, args)
	case *ir.Asm:
		err = bl.linkAsm(v, id)
	case *ir.SwitchBr:
		err = bl.linkSwitch(v, id, args)
	case *ir.Phi:
		err = bl.linkPhi(v, id)
	case *ir.StructInit:
		if len(id.Fields) != len(args) {
			return errors.Errorf("struct_init has %d fields but %d operands", len(id.Fields), len(args))
		}

		for i, field := range id.Fields {
			v.Fields = append(v.Fields, ir.StructInitField{Field: field, Value: args[i]})
		}
	case *ir.ContainerInitList:
		v.Elems = args
	case *ir.Unreachable, *ir.Comptime:
		err = arity(0, 0)
	default:
		if err = arity(1, 1); err == nil {
			err = setValue(instr, args[0])
		}
	}

	return err
}

// setValue sets the single operand of a unary instruction.
func setValue(instr ir.Instruction, x ir.Instruction) error {
	switch v := instr.(type) {
	case *ir.Cast:
		v.Value = x
	case *ir.UnOp:
		v.Value = x
	case *ir.LoadPtr:
		v.Ptr = x
	case *ir.StructFieldPtr:
		v.Struct = x
	case *ir.EnumFieldPtr:
		v.Enum = x
	case *ir.TestNull:
		v.Value = x
	case *ir.UnwrapMaybe:
		v.Value = x
	case *ir.Clz:
		v.Value = x
	case *ir.Ctz:
		v.Value = x
	case *ir.Ref:
		v.Value = x
	case *ir.ErrName:
		v.Value = x
	case *ir.EnumTag:
		v.Value = x
	default:
		return errors.Errorf("%s does not take an operand", instr.OpName())
	}

	return nil
}

func (bl *bodyLoader) linkCall(call *ir.Call, id *instrDoc, args []ir.Instruction) error {
	if id.Fn != "" {
		fn, ok := bl.funcs[id.Fn]
		if !ok {
			return errors.Errorf("unknown function `%s`", id.Fn)
		}

		call.Fn = fn
		call.Args = args
		return nil
	}

	if len(args) == 0 {
		return errors.New("call needs a function or a callee operand")
	}

	call.FnValue = args[0]
	call.Args = args[1:]
	return nil
}

func (bl *bodyLoader) linkAsm(asm *ir.Asm, id *instrDoc) error {
	for _, od := range id.Outputs {
		out := &ir.AsmOutput{Name: od.Name, Constraint: od.Constraint}
		if od.Var != "" {
			v, err := bl.variable(od.Var)
			if err != nil {
				return err
			}

			out.Var = v
		}

		asm.Outputs = append(asm.Outputs, out)
	}

	for _, in := range id.Inputs {
		x, err := bl.operand(in.Value)
		if err != nil {
			return err
		}

		asm.Inputs = append(asm.Inputs, &ir.AsmInput{Name: in.Name, Constraint: in.Constraint, Value: x})
	}

	return nil
}

func (bl *bodyLoader) linkSwitch(sw *ir.SwitchBr, id *instrDoc, args []ir.Instruction) error {
	if len(args) != 1 {
		return errors.Errorf("switch_br takes 1 operand, got %d", len(args))
	}

	sw.Target = args[0]

	var err error
	if sw.Else, err = bl.block(id.Else); err != nil {
		return err
	}

	for _, cd := range id.Cases {
		value, err := bl.constRef(cd.Value)
		if err != nil {
			return err
		}

		dest, err := bl.block(cd.Block)
		if err != nil {
			return err
		}

		sw.Cases = append(sw.Cases, ir.SwitchCase{Value: value, Block: dest})
	}

	return nil
}

func (bl *bodyLoader) linkPhi(phi *ir.Phi, id *instrDoc) error {
	for _, inc := range id.Incoming {
		pred, err := bl.block(inc.Block)
		if err != nil {
			return err
		}

		x, err := bl.operand(inc.Value)
		if err != nil {
			return err
		}

		phi.Incoming = append(phi.Incoming, ir.PhiIncoming{Block: pred, Value: x})
	}

	return nil
}
