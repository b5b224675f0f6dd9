// Package ir defines the fully analyzed intermediate representation consumed by
// the backend: functions made of basic blocks of typed instructions, the
// lexical scopes they were declared in, and the constant arena.
package ir

import "lowerc/types"

// Program is a fully analyzed program: the complete input to the backend.
type Program struct {
	// The name of the root source package.
	Name string

	Target Target

	// Consts is the arena owning all constant values.
	Consts *ConstArena

	// Types is the table of types declared by the program.
	Types []types.Type

	Globals []*GlobalVar

	// Prototypes lists every function the program refers to, including
	// external functions.  Definitions is the subset which have bodies.
	Prototypes  []*Function
	Definitions []*Function

	// ErrorNames is the list of declared errors in tag order.  Entry 0 is the
	// reserved "no error" tag.
	ErrorNames []string

	// UsesErrorNames indicates whether any error name is queried at runtime.
	UsesErrorNames bool

	// ErrTag is the integer type used for error tags.
	ErrTag *types.IntType

	// Main is the implicit entry point if the program has one.
	Main *Function

	// BuiltinRefs maps the name of each builtin shim function to the number of
	// references to it found during analysis.
	BuiltinRefs map[string]int

	Files []*SourceFile

	// ErrorCount is the number of errors reported upstream.  The backend
	// requires it to be zero.
	ErrorCount int
}

// Target describes the machine being compiled for.
type Target struct {
	PointerBits int
	BigEndian   bool
	OS, Arch    string

	// The LLVM target triple and data layout.  These may be empty in which case
	// they are left unspecified in the module.
	Triple, DataLayout string
}

// SourceFile is a single source file of the program.
type SourceFile struct {
	// The name of the file and the directory containing it.
	Name, Dir string
}

// GlobalVar is a module-level variable.
type GlobalVar struct {
	Name  string
	Type  types.Type
	Value ConstID

	Extern bool
	Export bool

	// Const globals are emitted read-only.
	Const bool

	Scope *Scope
	Line  int
}

// -----------------------------------------------------------------------------

// InlineMode is a function's inlining request.
type InlineMode int

// Enumeration of inline modes.
const (
	InlineAuto InlineMode = iota
	InlineAlways
	InlineNever
)

// Function is a function entry: either a prototype or a full definition.
type Function struct {
	// Name is the symbol name of the function.
	Name string

	Type *types.FuncType

	// ParamNames are the source names of the parameters.
	ParamNames []string

	// Internal functions are not visible outside the module.
	Internal bool

	Inline InlineMode
	IsTest bool

	// Scope is the function-definition scope.  It is nil for prototypes.
	Scope *Scope
	Line  int

	// Blocks are the basic blocks of the function's body in order.  The first
	// block is the entry block.
	Blocks []*BasicBlock

	// Variables are the parameters and locals declared in the function.
	Variables []*Variable

	// Temporaries are the instructions which require a stack slot to hold
	// their result.
	Temporaries []Instruction
}

// IsDefinition returns whether this function has a body.
func (fn *Function) IsDefinition() bool {
	return len(fn.Blocks) > 0
}

// BasicBlock is a straight-line sequence of instructions ending in a single
// terminator.
type BasicBlock struct {
	// Name is a hint used to name the generated block.
	Name string

	Instrs   []Instruction
	RefCount int
}

// Variable is a named local or parameter.
type Variable struct {
	Name  string
	Type  types.Type
	Scope *Scope
	Line  int
	Col   int

	// ArgIndex is the source parameter index or -1 for locals.
	ArgIndex int

	RefCount int

	// Inline variables only exist at compile-time.
	Inline bool
}

// IsParam returns whether the variable is a function parameter.
func (v *Variable) IsParam() bool {
	return v.ArgIndex >= 0
}

// -----------------------------------------------------------------------------

// ScopeKind enumerates the kinds of lexical scope.
type ScopeKind int

// Enumeration of scope kinds.
const (
	ScopeBlock ScopeKind = iota
	ScopeDefer
	ScopeVarDecl
	ScopeLoop
	ScopeFnDef
	ScopeDecls
	ScopeCImport
)

// Scope is a lexical scope.  Scopes form a tree through their parent links.
type Scope struct {
	Kind   ScopeKind
	Parent *Scope

	File *SourceFile
	Line int
	Col  int

	// Fn is the function of a ScopeFnDef scope.
	Fn *Function

	// Container is the type whose declarations a nested ScopeDecls scope holds.
	Container types.Type

	// SafetySet indicates that this scope overrides the runtime safety setting
	// of its parents.  SafetyOff is the value of the override.
	SafetySet bool
	SafetyOff bool
}

// SetSafety sets an explicit safety override on the scope.
func (s *Scope) SetSafety(enabled bool) {
	s.SafetySet = true
	s.SafetyOff = !enabled
}

// FileOf returns the source file of the nearest scope which has one.
func (s *Scope) FileOf() *SourceFile {
	for ; s != nil; s = s.Parent {
		if s.File != nil {
			return s.File
		}
	}

	return nil
}
