package ir

import "lowerc/types"

// Instruction is a single IR instruction.  The set of instruction kinds is
// closed: every kind is defined in this file.
type Instruction interface {
	// Base returns the data common to all instructions.
	Base() *InstrBase

	// HasSideEffects returns whether the instruction must be lowered even if
	// its result is never referenced.
	HasSideEffects() bool

	// OpName returns the name of the instruction's opcode.
	OpName() string

	instruction()
}

// InstrBase is the data common to all instructions.
type InstrBase struct {
	ID int

	// Type is the type of the instruction's result.
	Type types.Type

	// RefCount is the number of instructions which use this one's result.
	RefCount int

	Scope *Scope

	// The zero-based source position of the instruction.
	Line, Col int
}

func (b *InstrBase) Base() *InstrBase { return b }
func (b *InstrBase) instruction()      {}

// -----------------------------------------------------------------------------

// Const is a compile-time known operand.  Constants are referenced by other
// instructions but never appear in a basic block.
type Const struct {
	InstrBase
	Value ConstID
}

// Return returns from the current function.  Value is nil for functions which
// return nothing.
type Return struct {
	InstrBase
	Value Instruction
}

// DeclVar declares a local variable.  The initial value may be a constant
// which is undefined or all-zero.
type DeclVar struct {
	InstrBase
	Var  *Variable
	Init Instruction
}

// BinOpKind enumerates binary operators.
type BinOpKind int

// Enumeration of binary operators.
const (
	BinOpBoolOr BinOpKind = iota
	BinOpBoolAnd
	BinOpCmpEq
	BinOpCmpNotEq
	BinOpCmpLessThan
	BinOpCmpGreaterThan
	BinOpCmpLessOrEq
	BinOpCmpGreaterOrEq
	BinOpBinOr
	BinOpBinXor
	BinOpBinAnd
	BinOpShl
	BinOpShlWrap
	BinOpShr
	BinOpAdd
	BinOpAddWrap
	BinOpSub
	BinOpSubWrap
	BinOpMul
	BinOpMulWrap
	BinOpDiv
	BinOpDivExact
	BinOpMod
)

// BinOp is a binary operation.  SafetyCheck may disable the runtime check of
// an operation even when safety is enabled in its scope.
type BinOp struct {
	InstrBase
	Op          BinOpKind
	LHS, RHS    Instruction
	SafetyCheck bool
}

// CastOp enumerates the runtime conversions.
type CastOp int

// Enumeration of cast kinds.
const (
	CastNoop CastOp = iota
	CastErrToInt
	CastMaybeWrap
	CastErrorWrap
	CastPureErrorWrap
	CastPtrToInt
	CastIntToPtr
	CastPointerReinterpret
	CastWidenOrShorten
	CastToUnknownSizeArray
	CastResizeSlice
	CastBytesToSlice
	CastIntToFloat
	CastFloatToInt
	CastBoolToInt
	CastIntToEnum
	CastEnumToInt
)

// Cast converts Value to the instruction's result type.
type Cast struct {
	InstrBase
	Op    CastOp
	Value Instruction
}

// Unreachable marks a point control flow can never reach.
type Unreachable struct {
	InstrBase
}

// CondBr branches on a boolean.
type CondBr struct {
	InstrBase
	Cond       Instruction
	Then, Else *BasicBlock
}

// Br is an unconditional branch.
type Br struct {
	InstrBase
	Dest *BasicBlock
}

// UnOpKind enumerates unary operators.
type UnOpKind int

// Enumeration of unary operators.
const (
	UnOpNegation UnOpKind = iota
	UnOpNegationWrap
	UnOpBoolNot
	UnOpBinNot
	UnOpDereference
	UnOpUnwrapError
	UnOpUnwrapMaybe
)

// UnOp is a unary operation.
type UnOp struct {
	InstrBase
	Op    UnOpKind
	Value Instruction
}

// LoadPtr loads the value behind a pointer.
type LoadPtr struct {
	InstrBase
	Ptr Instruction
}

// StorePtr stores a value through a pointer.
type StorePtr struct {
	InstrBase
	Ptr, Value Instruction
}

// VarPtr produces a pointer to a variable.
type VarPtr struct {
	InstrBase
	Var *Variable
}

// ElemPtr produces a pointer to an element of the array, slice, or pointer
// pointed to by Array.
type ElemPtr struct {
	InstrBase
	Array       Instruction
	Index       Instruction
	SafetyCheck bool
}

// Call calls a function.  Exactly one of Fn and FnValue is set.
type Call struct {
	InstrBase
	Fn      *Function
	FnValue Instruction
	Args    []Instruction
}

// StructFieldPtr produces a pointer to the field with the logical index Field
// of the struct pointed to by Struct.
type StructFieldPtr struct {
	InstrBase
	Struct Instruction
	Field  int
}

// EnumFieldPtr produces a pointer to the payload of a variant of the enum
// pointed to by Enum.
type EnumFieldPtr struct {
	InstrBase
	Enum    Instruction
	Variant int
}

// AsmOutput is an output operand of an inline assembly expression.  Var is nil
// for the output which is the expression's result.
type AsmOutput struct {
	Name       string
	Constraint string
	Var        *Variable
}

// AsmInput is an input operand of an inline assembly expression.
type AsmInput struct {
	Name       string
	Constraint string
	Value      Instruction
}

// Asm is an inline assembly expression.
type Asm struct {
	InstrBase
	Template string
	Outputs  []*AsmOutput
	Inputs   []*AsmInput
	Clobbers []string
	Volatile bool
}

// TestNull tests whether the optional pointed to by Value is present.
type TestNull struct {
	InstrBase
	Value Instruction
}

// UnwrapMaybe produces a pointer to the child of the optional pointed to by
// Value.
type UnwrapMaybe struct {
	InstrBase
	Value       Instruction
	SafetyCheck bool
}

// Clz counts the leading zeroes of an integer.
type Clz struct {
	InstrBase
	Value Instruction
}

// Ctz counts the trailing zeroes of an integer.
type Ctz struct {
	InstrBase
	Value Instruction
}

// SwitchCase is a single case of a SwitchBr.
type SwitchCase struct {
	Value ConstID
	Block *BasicBlock
}

// SwitchBr branches to the block of the case matching Target.
type SwitchBr struct {
	InstrBase
	Target Instruction
	Cases  []SwitchCase
	Else   *BasicBlock
}

// PhiIncoming is a single incoming edge of a Phi.
type PhiIncoming struct {
	Block *BasicBlock
	Value Instruction
}

// Phi selects a value based on the predecessor block.
type Phi struct {
	InstrBase
	Incoming []PhiIncoming
}

// Ref produces a pointer to a value.
type Ref struct {
	InstrBase
	Value Instruction
}

// ErrName produces the name of an error tag as a slice.
type ErrName struct {
	InstrBase
	Value Instruction
}

// StructInitField is a single field value of a StructInit.
type StructInitField struct {
	Field int
	Value Instruction
}

// StructInit builds a struct value from its fields.
type StructInit struct {
	InstrBase
	Fields []StructInitField
}

// ContainerInitList builds an array value from its elements.
type ContainerInitList struct {
	InstrBase
	Elems []Instruction
}

// EnumTag produces the tag of an enum value.
type EnumTag struct {
	InstrBase
	Value Instruction
}

// ComptimeOp enumerates the operations which only exist during compile-time
// evaluation.
type ComptimeOp int

// Enumeration of compile-time-only operations.
const (
	ComptimeTypeOf ComptimeOp = iota
	ComptimeSizeOf
	ComptimeCompileVar
	ComptimeStaticEval
	ComptimeSetDebugSafety
	ComptimeFieldPtr
	ComptimeSwitchTarget
	ComptimeCompileErr
)

var comptimeOpNames = []string{
	"typeof",
	"sizeof",
	"compile_var",
	"static_eval",
	"set_debug_safety",
	"field_ptr",
	"switch_target",
	"compile_err",
}

// Comptime is an operation which must have been evaluated and removed before
// the program reaches the backend.
type Comptime struct {
	InstrBase
	Op ComptimeOp
}

// -----------------------------------------------------------------------------

func (*Const) OpName() string             { return "const" }
func (*Return) OpName() string            { return "return" }
func (*DeclVar) OpName() string           { return "decl_var" }
func (*BinOp) OpName() string             { return "bin_op" }
func (*Cast) OpName() string              { return "cast" }
func (*Unreachable) OpName() string       { return "unreachable" }
func (*CondBr) OpName() string            { return "cond_br" }
func (*Br) OpName() string                { return "br" }
func (*UnOp) OpName() string              { return "un_op" }
func (*LoadPtr) OpName() string           { return "load_ptr" }
func (*StorePtr) OpName() string          { return "store_ptr" }
func (*VarPtr) OpName() string            { return "var_ptr" }
func (*ElemPtr) OpName() string           { return "elem_ptr" }
func (*Call) OpName() string              { return "call" }
func (*StructFieldPtr) OpName() string    { return "struct_field_ptr" }
func (*EnumFieldPtr) OpName() string      { return "enum_field_ptr" }
func (*Asm) OpName() string               { return "asm" }
func (*TestNull) OpName() string          { return "test_null" }
func (*UnwrapMaybe) OpName() string       { return "unwrap_maybe" }
func (*Clz) OpName() string               { return "clz" }
func (*Ctz) OpName() string               { return "ctz" }
func (*SwitchBr) OpName() string          { return "switch_br" }
func (*Phi) OpName() string               { return "phi" }
func (*Ref) OpName() string               { return "ref" }
func (*ErrName) OpName() string           { return "err_name" }
func (*StructInit) OpName() string        { return "struct_init" }
func (*ContainerInitList) OpName() string { return "container_init_list" }
func (*EnumTag) OpName() string           { return "enum_tag" }
func (c *Comptime) OpName() string        { return comptimeOpNames[c.Op] }

// -----------------------------------------------------------------------------

func (*Const) HasSideEffects() bool             { return false }
func (*Return) HasSideEffects() bool            { return true }
func (*DeclVar) HasSideEffects() bool           { return true }
func (*BinOp) HasSideEffects() bool             { return false }
func (*Cast) HasSideEffects() bool              { return false }
func (*Unreachable) HasSideEffects() bool       { return true }
func (*CondBr) HasSideEffects() bool            { return true }
func (*Br) HasSideEffects() bool                { return true }
func (*UnOp) HasSideEffects() bool              { return false }
func (*LoadPtr) HasSideEffects() bool           { return false }
func (*StorePtr) HasSideEffects() bool          { return true }
func (*VarPtr) HasSideEffects() bool            { return false }
func (*ElemPtr) HasSideEffects() bool           { return false }
func (*Call) HasSideEffects() bool              { return true }
func (*StructFieldPtr) HasSideEffects() bool    { return false }
func (*EnumFieldPtr) HasSideEffects() bool      { return false }
func (*Asm) HasSideEffects() bool               { return true }
func (*TestNull) HasSideEffects() bool          { return false }
func (*UnwrapMaybe) HasSideEffects() bool       { return false }
func (*Clz) HasSideEffects() bool               { return false }
func (*Ctz) HasSideEffects() bool               { return false }
func (*SwitchBr) HasSideEffects() bool          { return true }
func (*Phi) HasSideEffects() bool               { return false }
func (*Ref) HasSideEffects() bool               { return false }
func (*ErrName) HasSideEffects() bool           { return false }
func (*StructInit) HasSideEffects() bool        { return false }
func (*ContainerInitList) HasSideEffects() bool { return false }
func (*EnumTag) HasSideEffects() bool           { return false }
func (*Comptime) HasSideEffects() bool          { return false }
