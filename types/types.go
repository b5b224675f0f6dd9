package types

import (
	"fmt"
	"strings"
)

// Type represents a fully analyzed type descriptor.  Type descriptors are
// produced upstream and are compared by identity: two descriptors of the same
// shape which are not the same object are distinct types as far as layout
// caching is concerned.
type Type interface {
	// Repr returns the representative string for this type.
	Repr() string
}

// -----------------------------------------------------------------------------

// IntType represents a fixed-width integer type.
type IntType struct {
	// The bit width of the integer.  Zero-width integers occupy no storage.
	Bits int

	// Whether the integer is signed.
	Signed bool

	// Whether this is one of the pointer-sized integers: `isize` or `usize`.
	PtrSized bool

	// The C spelling of this type if it is one of the C integer types: eg.
	// `int` or `unsigned long`.
	CName string
}

func (it *IntType) Repr() string {
	if it.CName != "" {
		return it.CName
	}

	if it.PtrSized {
		if it.Signed {
			return "isize"
		}

		return "usize"
	}

	if it.Signed {
		return fmt.Sprintf("i%d", it.Bits)
	}

	return fmt.Sprintf("u%d", it.Bits)
}

// FloatType represents a floating point type.  The width must be one of 16, 32,
// 64, 80, or 128.
type FloatType struct {
	Bits int

	// The C spelling of this type if it is `long double`.
	CName string
}

func (ft *FloatType) Repr() string {
	if ft.CName != "" {
		return ft.CName
	}

	return fmt.Sprintf("f%d", ft.Bits)
}

// BoolType is the boolean type.
type BoolType struct{}

func (*BoolType) Repr() string { return "bool" }

// VoidType is the type of expressions with no value.
type VoidType struct{}

func (*VoidType) Repr() string { return "void" }

// UnreachableType is the type of expressions which never produce a value.
type UnreachableType struct{}

func (*UnreachableType) Repr() string { return "unreachable" }

// Shared instances of the types with no parameters.
var (
	Bool        = &BoolType{}
	Void        = &VoidType{}
	Unreachable = &UnreachableType{}
)

// -----------------------------------------------------------------------------

// PointerType represents a single-item pointer type.
type PointerType struct {
	Elem  Type
	Const bool
}

func (pt *PointerType) Repr() string {
	if pt.Const {
		return "&const " + pt.Elem.Repr()
	}

	return "&" + pt.Elem.Repr()
}

// ArrayType represents a fixed-length array type.
type ArrayType struct {
	Elem Type
	Len  uint64
}

func (at *ArrayType) Repr() string {
	return fmt.Sprintf("[%d]%s", at.Len, at.Elem.Repr())
}

// SliceType represents a slice: a pointer and a length.
type SliceType struct {
	Elem  Type
	Const bool
}

func (st *SliceType) Repr() string {
	if st.Const {
		return "[]const " + st.Elem.Repr()
	}

	return "[]" + st.Elem.Repr()
}

// StructField is a single named field of a struct.
type StructField struct {
	Name string
	Type Type
}

// StructType represents a named structure type.  The field order is the
// logical (source) order: storage indices are derived by the layout registry.
type StructType struct {
	Name   string
	Fields []*StructField

	// Incomplete structs have no known layout.  They may only be used behind
	// pointers.
	Incomplete bool
}

func (st *StructType) Repr() string {
	return st.Name
}

// EnumVariant is a single variant of an enum.
type EnumVariant struct {
	Name string

	// The tag value of the variant.
	Value uint64

	// The payload type of the variant.  This may be nil.
	Payload Type
}

// EnumType represents a tagged enumeration whose variants may carry payloads.
type EnumType struct {
	Name     string
	Tag      *IntType
	Variants []*EnumVariant
}

func (et *EnumType) Repr() string {
	return et.Name
}

// ErrorSetType is the type of a bare error tag.
type ErrorSetType struct {
	Tag *IntType
}

func (*ErrorSetType) Repr() string { return "error" }

// ErrorUnionType represents a value which is either an error tag or a value of
// the child type.
type ErrorUnionType struct {
	Child Type
	Tag   *IntType
}

func (eut *ErrorUnionType) Repr() string {
	return "%" + eut.Child.Repr()
}

// OptionalType represents a value which may be absent.
type OptionalType struct {
	Child Type
}

func (ot *OptionalType) Repr() string {
	return "?" + ot.Child.Repr()
}

// -----------------------------------------------------------------------------

// CallConv is a function calling convention.
type CallConv int

// Enumeration of calling conventions.
const (
	CallConvUnspecified CallConv = iota
	CallConvC
	CallConvFast
	CallConvCold
)

// FuncParam is a single parameter of a function type.
type FuncParam struct {
	Type    Type
	NoAlias bool
}

// FuncType represents a function signature.
type FuncType struct {
	Params   []*FuncParam
	Return   Type
	CallConv CallConv
	Variadic bool

	// Extern functions use the platform ABI: aggregates are returned directly
	// instead of through an implicit return slot.
	Extern bool

	Naked bool
}

func (ft *FuncType) Repr() string {
	sb := strings.Builder{}
	sb.WriteString("fn(")

	for i, param := range ft.Params {
		if i > 0 {
			sb.WriteString(", ")
		}

		sb.WriteString(param.Type.Repr())
	}

	if ft.Variadic {
		sb.WriteString(", ...")
	}

	sb.WriteString(") ")
	sb.WriteString(ft.Return.Repr())
	return sb.String()
}

// -----------------------------------------------------------------------------

// ComptimeKind enumerates the types which only exist during compile-time
// evaluation and never reach a runtime representation.
type ComptimeKind int

// Enumeration of compile-time-only type kinds.
const (
	ComptimeMetaType ComptimeKind = iota
	ComptimeNumLitInt
	ComptimeNumLitFloat
	ComptimeUndefLit
	ComptimeNullLit
	ComptimeNamespace
	ComptimeBlock
	ComptimeBoundFn
	ComptimeVar
)

var comptimeKindNames = []string{
	"type",
	"(integer literal)",
	"(float literal)",
	"(undefined)",
	"(null)",
	"(namespace)",
	"(block)",
	"(bound fn)",
	"var",
}

// ComptimeType is a compile-time-only type.
type ComptimeType struct {
	Kind ComptimeKind
}

func (ct *ComptimeType) Repr() string {
	return comptimeKindNames[ct.Kind]
}

// -----------------------------------------------------------------------------

// IsPointerLike returns whether values of typ are represented as a single
// machine pointer: pointers and functions.  Optionals of pointer-like types use
// the null pointer to represent absence.
func IsPointerLike(typ Type) bool {
	switch typ.(type) {
	case *PointerType, *FuncType:
		return true
	default:
		return false
	}
}

// IsComptime returns whether typ only exists at compile-time.
func IsComptime(typ Type) bool {
	_, ok := typ.(*ComptimeType)
	return ok
}
