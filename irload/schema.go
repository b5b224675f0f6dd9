package irload

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// The document types mirror the YAML program format.  Types are written as type
// expressions, constants are referenced as `@name`, and instructions refer to
// the results of other instructions of the same function by their `id`.

type programDoc struct {
	Name   string    `yaml:"name"`
	Target targetDoc `yaml:"target"`
	Files  []fileDoc `yaml:"files"`

	ErrorTag       string   `yaml:"error-tag"`
	ErrorNames     []string `yaml:"error-names"`
	UsesErrorNames bool     `yaml:"uses-error-names"`

	BuiltinRefs map[string]int `yaml:"builtin-refs"`

	Types     []typeDoc   `yaml:"types"`
	Consts    []constDoc  `yaml:"consts"`
	Globals   []globalDoc `yaml:"globals"`
	Functions []funcDoc   `yaml:"functions"`

	Main       string `yaml:"main"`
	ErrorCount int    `yaml:"error-count"`
}

type targetDoc struct {
	PointerBits int    `yaml:"pointer-bits"`
	BigEndian   bool   `yaml:"big-endian"`
	OS          string `yaml:"os"`
	Arch        string `yaml:"arch"`
	Triple      string `yaml:"triple"`
	DataLayout  string `yaml:"data-layout"`
}

type fileDoc struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"`
}

type typeDoc struct {
	Name string `yaml:"name"`

	// Kind is either `struct` or `enum`.
	Kind string `yaml:"kind"`

	Fields     []fieldDoc   `yaml:"fields"`
	Incomplete bool         `yaml:"incomplete"`
	Tag        string       `yaml:"tag"`
	Variants   []variantDoc `yaml:"variants"`
}

type fieldDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type variantDoc struct {
	Name    string  `yaml:"name"`
	Value   *uint64 `yaml:"value"`
	Payload string  `yaml:"payload"`
}

// constDoc is a constant.  Exactly one of the value fields is set, matching
// the kind of the constant's type.
type constDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	Undef  bool `yaml:"undef"`
	Zeroes bool `yaml:"zeroes"`

	Int   scalar   `yaml:"int"`
	Float *float64 `yaml:"float"`
	Bool  *bool    `yaml:"bool"`

	// Fields holds struct fields and Elems array or slice elements.
	Fields []string `yaml:"fields"`
	Elems  []string `yaml:"elems"`

	Variant string `yaml:"variant"`
	Payload string `yaml:"payload"`

	// String is the text of a byte slice constant.
	String *string `yaml:"string"`

	Pointer *pointerDoc `yaml:"pointer"`
	Fn      string      `yaml:"fn"`

	// Error is an error name, used by error tags and error unions.
	Error string `yaml:"error"`

	// Some is the child of a present optional.  Optionals without it are null.
	Some string `yaml:"some"`
}

type pointerDoc struct {
	Base  string `yaml:"base"`
	Index *int   `yaml:"index"`
}

type globalDoc struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Value  string `yaml:"value"`
	Extern bool   `yaml:"extern"`
	Export bool   `yaml:"export"`
	Const  bool   `yaml:"const"`
	File   int    `yaml:"file"`
	Line   int    `yaml:"line"`
}

type funcDoc struct {
	Name     string     `yaml:"name"`
	Params   []paramDoc `yaml:"params"`
	Return   string     `yaml:"return"`
	CallConv string     `yaml:"callconv"`
	Variadic bool       `yaml:"variadic"`
	Extern   bool       `yaml:"extern"`
	Naked    bool       `yaml:"naked"`

	Internal bool   `yaml:"internal"`
	Inline   string `yaml:"inline"`
	Test     bool   `yaml:"test"`

	File int `yaml:"file"`
	Line int `yaml:"line"`

	// Safety overrides the runtime safety of the function body: `on` or
	// `off`.
	Safety string `yaml:"safety"`

	Scopes []scopeDoc `yaml:"scopes"`
	Locals []localDoc `yaml:"locals"`
	Blocks []blockDoc `yaml:"blocks"`
}

type paramDoc struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	NoAlias bool   `yaml:"noalias"`
	Line    int    `yaml:"line"`
	Col     int    `yaml:"col"`
}

// scopeDoc is a nested scope of a function body.  Scopes without a parent are
// nested in the function scope.
type scopeDoc struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Parent string `yaml:"parent"`
	Line   int    `yaml:"line"`
	Col    int    `yaml:"col"`
	Safety string `yaml:"safety"`
}

type localDoc struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Scope  string `yaml:"scope"`
	Line   int    `yaml:"line"`
	Col    int    `yaml:"col"`
	Inline bool   `yaml:"inline"`
}

type blockDoc struct {
	Name   string     `yaml:"name"`
	Instrs []instrDoc `yaml:"instrs"`
}

// instrDoc is a single instruction.  Args holds the operands in order: either
// the id of an instruction or the `@name` of a constant.
type instrDoc struct {
	ID    int    `yaml:"id"`
	Op    string `yaml:"op"`
	Type  string `yaml:"type"`
	Scope string `yaml:"scope"`
	Line  int    `yaml:"line"`
	Col   int    `yaml:"col"`

	Args []scalar `yaml:"args"`

	// Kind is the operator of bin_op and un_op and the conversion of cast.
	Kind  string `yaml:"kind"`
	Check bool   `yaml:"check"`

	Var     string `yaml:"var"`
	Fn      string `yaml:"fn"`
	Field   int    `yaml:"field"`
	Variant int    `yaml:"variant"`

	Dest string `yaml:"dest"`
	Then string `yaml:"then"`
	Else string `yaml:"else"`

	Cases    []caseDoc     `yaml:"cases"`
	Incoming []incomingDoc `yaml:"incoming"`
	Fields   []int         `yaml:"fields"`

	Template string      `yaml:"template"`
	Outputs  []asmOutDoc `yaml:"outputs"`
	Inputs   []asmInDoc  `yaml:"inputs"`
	Clobbers []string    `yaml:"clobbers"`
	Volatile bool        `yaml:"volatile"`
}

type caseDoc struct {
	Value string `yaml:"value"`
	Block string `yaml:"block"`
}

type incomingDoc struct {
	Block string `yaml:"block"`
	Value scalar `yaml:"value"`
}

type asmOutDoc struct {
	Name       string `yaml:"name"`
	Constraint string `yaml:"constraint"`
	Var        string `yaml:"var"`
}

type asmInDoc struct {
	Name       string `yaml:"name"`
	Constraint string `yaml:"constraint"`
	Value      scalar `yaml:"value"`
}

// scalar is the text of any scalar node.  It holds operands and integers which
// may be written either bare or quoted.
type scalar string

func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected a scalar", node.Line)
	}

	*s = scalar(node.Value)
	return nil
}
