package ir

import (
	"math/big"

	"lowerc/types"
)

// ConstID is a stable handle to a constant value stored in a ConstArena.
type ConstID int

// NoConst is the handle used to indicate the absence of a constant.
const NoConst ConstID = -1

// ConstSpecial indicates whether a constant holds a concrete value or one of
// the special all-undefined or all-zero values.
type ConstSpecial int

// Enumeration of constant special values.
const (
	ConstStatic ConstSpecial = iota
	ConstUndef
	ConstZeroes
)

// ConstValue is a compile-time known value.  Its data mirrors the shape of its
// type: aggregates refer to their members by handle so that the constant graph
// may contain shared, self and mutual references through pointers.
type ConstValue struct {
	Type    types.Type
	Special ConstSpecial

	// Data is nil unless Special is ConstStatic.
	Data ConstData
}

// ConstData is the payload of a static constant.
type ConstData interface {
	constData()
}

// ConstInt is an integer constant of arbitrary magnitude.  Negative values are
// rendered in two's complement.
type ConstInt struct {
	Value *big.Int
}

// ConstFloat is a floating point constant.
type ConstFloat struct {
	Value float64
}

// ConstBool is a boolean constant.
type ConstBool struct {
	Value bool
}

// ConstStruct holds a constant for each logical field of a struct, including
// zero-size fields.
type ConstStruct struct {
	Fields []ConstID
}

// ConstArray holds a constant for each array element.
type ConstArray struct {
	Elems []ConstID
}

// ConstEnum is an enum value: the index of the active variant and its payload
// if it has one.
type ConstEnum struct {
	Variant int
	Payload ConstID
}

// ConstPointer is the address of a constant.  If Index is negative, it points
// to Base itself.  Otherwise, Base must be an array constant and the pointer
// points to the element at Index.
type ConstPointer struct {
	Base  ConstID
	Index int
}

// ConstFunc is a reference to a function.
type ConstFunc struct {
	Fn *Function
}

// ConstErrorTag is a bare error tag.
type ConstErrorTag struct {
	Value uint64
}

// ConstErrorUnion is an error union value.  Err is zero when the union holds a
// payload.
type ConstErrorUnion struct {
	Err     uint64
	Payload ConstID
}

// ConstOptional is an optional value.  Child is NoConst when the value is
// absent.
type ConstOptional struct {
	Child ConstID
}

func (*ConstInt) constData()        {}
func (*ConstFloat) constData()      {}
func (*ConstBool) constData()       {}
func (*ConstStruct) constData()     {}
func (*ConstArray) constData()      {}
func (*ConstEnum) constData()       {}
func (*ConstPointer) constData()    {}
func (*ConstFunc) constData()       {}
func (*ConstErrorTag) constData()   {}
func (*ConstErrorUnion) constData() {}
func (*ConstOptional) constData()   {}

// -----------------------------------------------------------------------------

// ConstArena owns all the constants of a program.  Constants are appended once
// and never removed, so handles remain valid for the lifetime of the arena.
type ConstArena struct {
	values []*ConstValue
}

// NewConstArena creates a new, empty constant arena.
func NewConstArena() *ConstArena {
	return &ConstArena{}
}

// Add adds a constant to the arena and returns its handle.
func (a *ConstArena) Add(cv *ConstValue) ConstID {
	a.values = append(a.values, cv)
	return ConstID(len(a.values) - 1)
}

// Get returns the constant for a handle.
func (a *ConstArena) Get(id ConstID) *ConstValue {
	return a.values[id]
}

// Len returns the number of constants in the arena.
func (a *ConstArena) Len() int {
	return len(a.values)
}

// -----------------------------------------------------------------------------

// Int adds a static integer constant.
func (a *ConstArena) Int(typ types.Type, x int64) ConstID {
	return a.Add(&ConstValue{Type: typ, Data: &ConstInt{Value: big.NewInt(x)}})
}

// Float adds a static float constant.
func (a *ConstArena) Float(typ types.Type, x float64) ConstID {
	return a.Add(&ConstValue{Type: typ, Data: &ConstFloat{Value: x}})
}

// Bool adds a static boolean constant.
func (a *ConstArena) Bool(x bool) ConstID {
	return a.Add(&ConstValue{Type: types.Bool, Data: &ConstBool{Value: x}})
}

// Undef adds an undefined constant of typ.
func (a *ConstArena) Undef(typ types.Type) ConstID {
	return a.Add(&ConstValue{Type: typ, Special: ConstUndef})
}

// Zeroes adds an all-zero constant of typ.
func (a *ConstArena) Zeroes(typ types.Type) ConstID {
	return a.Add(&ConstValue{Type: typ, Special: ConstZeroes})
}

// Static adds a static constant with the given data.
func (a *ConstArena) Static(typ types.Type, data ConstData) ConstID {
	return a.Add(&ConstValue{Type: typ, Data: data})
}
