package ir

import "lowerc/types"

// FuncBuilder incrementally builds the body of a function definition.  It
// assigns instruction IDs, maintains operand reference counts, and records the
// instructions which may need a stack temporary.
type FuncBuilder struct {
	Fn *Function

	consts *ConstArena
	block  *BasicBlock
	scope  *Scope
	nextID int
}

// NewFuncBuilder creates a new function definition and a builder for it.  The
// function's scope is nested inside parent.
func NewFuncBuilder(consts *ConstArena, name string, typ *types.FuncType, parent *Scope) *FuncBuilder {
	fn := &Function{Name: name, Type: typ}
	fn.Scope = &Scope{Kind: ScopeFnDef, Parent: parent, Fn: fn}

	if parent != nil {
		fn.Scope.File = parent.File
	}

	return &FuncBuilder{Fn: fn, consts: consts, scope: fn.Scope}
}

// Param declares the next parameter of the function.
func (b *FuncBuilder) Param(name string) *Variable {
	ndx := len(b.Fn.ParamNames)
	b.Fn.ParamNames = append(b.Fn.ParamNames, name)

	v := &Variable{
		Name:     name,
		Type:     b.Fn.Type.Params[ndx].Type,
		Scope:    b.Fn.Scope,
		ArgIndex: ndx,
		RefCount: 1,
	}

	b.Fn.Variables = append(b.Fn.Variables, v)
	return v
}

// Local declares a local variable in the current scope.
func (b *FuncBuilder) Local(name string, typ types.Type) *Variable {
	v := &Variable{
		Name:     name,
		Type:     typ,
		Scope:    b.scope,
		ArgIndex: -1,
		RefCount: 1,
	}

	b.Fn.Variables = append(b.Fn.Variables, v)
	return v
}

// Block appends a new basic block to the function and positions the builder
// at its end.
func (b *FuncBuilder) Block(name string) *BasicBlock {
	bb := &BasicBlock{Name: name, RefCount: 1}
	b.Fn.Blocks = append(b.Fn.Blocks, bb)
	b.block = bb
	return bb
}

// SetBlock positions the builder at the end of an existing block.
func (b *FuncBuilder) SetBlock(bb *BasicBlock) {
	b.block = bb
}

// PushScope enters a new nested scope of the given kind.
func (b *FuncBuilder) PushScope(kind ScopeKind, line, col int) *Scope {
	b.scope = &Scope{Kind: kind, Parent: b.scope, File: b.scope.File, Line: line, Col: col}
	return b.scope
}

// PopScope returns to the parent of the current scope.
func (b *FuncBuilder) PopScope() {
	b.scope = b.scope.Parent
}

// Scope returns the current scope.
func (b *FuncBuilder) Scope() *Scope {
	return b.scope
}

// Const creates a constant operand.  Constants are not added to any block.
func (b *FuncBuilder) Const(id ConstID) *Const {
	c := &Const{Value: id}
	c.ID = b.nextID
	c.Type = b.consts.Get(id).Type
	c.Scope = b.scope
	b.nextID++
	return c
}

// Emit appends instr with the result type typ to the current block.
func (b *FuncBuilder) Emit(typ types.Type, instr Instruction) Instruction {
	base := instr.Base()
	base.ID = b.nextID
	base.Type = typ
	if base.Scope == nil {
		base.Scope = b.scope
	}
	b.nextID++

	for _, operand := range Operands(instr) {
		operand.Base().RefCount++
	}

	if MayNeedTemporary(instr) {
		b.Fn.Temporaries = append(b.Fn.Temporaries, instr)
	}

	b.block.Instrs = append(b.block.Instrs, instr)
	return instr
}

// At sets the source position of the next emitted instruction.
func At[T Instruction](instr T, line, col int) T {
	instr.Base().Line = line
	instr.Base().Col = col
	return instr
}

// -----------------------------------------------------------------------------

// Operands returns the instruction operands of instr.
func Operands(instr Instruction) []Instruction {
	var ops []Instruction
	add := func(xs ...Instruction) {
		for _, x := range xs {
			if x != nil {
				ops = append(ops, x)
			}
		}
	}

	switch v := instr.(type) {
	case *Return:
		add(v.Value)
	case *DeclVar:
		add(v.Init)
	case *BinOp:
		add(v.LHS, v.RHS)
	case *Cast:
		add(v.Value)
	case *CondBr:
		add(v.Cond)
	case *UnOp:
		add(v.Value)
	case *LoadPtr:
		add(v.Ptr)
	case *StorePtr:
		add(v.Ptr, v.Value)
	case *ElemPtr:
		add(v.Array, v.Index)
	case *Call:
		add(v.FnValue)
		add(v.Args...)
	case *StructFieldPtr:
		add(v.Struct)
	case *EnumFieldPtr:
		add(v.Enum)
	case *Asm:
		for _, input := range v.Inputs {
			add(input.Value)
		}
	case *TestNull:
		add(v.Value)
	case *UnwrapMaybe:
		add(v.Value)
	case *Clz:
		add(v.Value)
	case *Ctz:
		add(v.Value)
	case *SwitchBr:
		add(v.Target)
	case *Phi:
		for _, inc := range v.Incoming {
			add(inc.Value)
		}
	case *Ref:
		add(v.Value)
	case *ErrName:
		add(v.Value)
	case *StructInit:
		for _, field := range v.Fields {
			add(field.Value)
		}
	case *ContainerInitList:
		add(v.Elems...)
	case *EnumTag:
		add(v.Value)
	}

	return ops
}

// MayNeedTemporary returns whether instr may require a stack slot to hold its
// result.  Whether the slot is actually allocated depends on the layout of the
// result type.
func MayNeedTemporary(instr Instruction) bool {
	switch v := instr.(type) {
	case *Ref, *Call, *StructInit, *ContainerInitList:
		return true
	case *Cast:
		switch v.Op {
		case CastMaybeWrap, CastErrorWrap, CastPureErrorWrap,
			CastToUnknownSizeArray, CastResizeSlice, CastBytesToSlice:
			return true
		}
	}

	return false
}
