package irload

import (
	"strconv"
	"strings"
	"unicode"

	"lowerc/types"

	"github.com/pkg/errors"
)

// typeTable resolves type expressions.  Equal expressions resolve to the same
// descriptor.
type typeTable struct {
	named map[string]types.Type
	cache map[string]types.Type

	ptrBits int
	errTag  *types.IntType
}

func newTypeTable(ptrBits int, errTag *types.IntType) *typeTable {
	return &typeTable{
		named:   make(map[string]types.Type),
		cache:   make(map[string]types.Type),
		ptrBits: ptrBits,
		errTag:  errTag,
	}
}

// cTypes are the C integer and float types by name.
var cTypes = map[string]types.Type{
	"c_short":      &types.IntType{Bits: 16, Signed: true, CName: "short"},
	"c_ushort":     &types.IntType{Bits: 16, CName: "unsigned short"},
	"c_int":        &types.IntType{Bits: 32, Signed: true, CName: "int"},
	"c_uint":       &types.IntType{Bits: 32, CName: "unsigned int"},
	"c_long":       &types.IntType{Bits: 64, Signed: true, CName: "long"},
	"c_ulong":      &types.IntType{Bits: 64, CName: "unsigned long"},
	"c_longlong":   &types.IntType{Bits: 64, Signed: true, CName: "long long"},
	"c_ulonglong":  &types.IntType{Bits: 64, CName: "unsigned long long"},
	"c_longdouble": &types.FloatType{Bits: 80, CName: "long double"},
}

var comptimeTypes = map[string]types.ComptimeKind{
	"type":          types.ComptimeMetaType,
	"comptime_int":  types.ComptimeNumLitInt,
	"comptime_real": types.ComptimeNumLitFloat,
	"undefined":     types.ComptimeUndefLit,
	"null":          types.ComptimeNullLit,
	"namespace":     types.ComptimeNamespace,
}

// resolve returns the type described by expr.
func (tt *typeTable) resolve(expr string) (types.Type, error) {
	expr = strings.TrimSpace(expr)
	if t, ok := tt.cache[expr]; ok {
		return t, nil
	}

	p := &typeParser{tt: tt, src: expr}
	t, err := p.parseType()
	if err != nil {
		return nil, errors.Wrapf(err, "in type `%s`", expr)
	}

	if p.skipSpace(); p.pos < len(p.src) {
		return nil, errors.Errorf("unexpected `%s` after type `%s`", p.src[p.pos:], p.src[:p.pos])
	}

	tt.cache[expr] = t
	return t, nil
}

// typeParser parses a single type expression:
//
//	type := '&' ['const'] type
//	      | '[' int ']' type
//	      | '[' ']' ['const'] type
//	      | '?' type
//	      | '%' type
//	      | 'fn' '(' [type {',' type}] [',' '...'] ')' type
//	      | ident
type typeParser struct {
	tt  *typeTable
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}

	return false
}

func (p *typeParser) expect(tok string) error {
	if !p.accept(tok) {
		return errors.Errorf("expected `%s` at column %d", tok, p.pos+1)
	}

	return nil
}

// acceptKeyword accepts kw only if it is not the prefix of a longer name.
func (p *typeParser) acceptKeyword(kw string) bool {
	p.skipSpace()
	rest := p.src[p.pos:]
	if !strings.HasPrefix(rest, kw) {
		return false
	}

	if len(rest) > len(kw) && isIdentRune(rune(rest[len(kw)])) {
		return false
	}

	p.pos += len(kw)
	return true
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isIdentRune(rune(p.src[p.pos])) {
		p.pos++
	}

	return p.src[start:p.pos]
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *typeParser) parseType() (types.Type, error) {
	switch {
	case p.accept("&"):
		isConst := p.acceptKeyword("const")
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}

		return &types.PointerType{Elem: elem, Const: isConst}, nil
	case p.accept("[]"):
		isConst := p.acceptKeyword("const")
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}

		return &types.SliceType{Elem: elem, Const: isConst}, nil
	case p.accept("["):
		p.skipSpace()
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}

		n, err := strconv.ParseUint(p.src[start:p.pos], 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid array length at column %d", start+1)
		}

		if err := p.expect("]"); err != nil {
			return nil, err
		}

		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}

		return &types.ArrayType{Elem: elem, Len: n}, nil
	case p.accept("?"):
		child, err := p.parseType()
		if err != nil {
			return nil, err
		}

		return &types.OptionalType{Child: child}, nil
	case p.accept("%"):
		child, err := p.parseType()
		if err != nil {
			return nil, err
		}

		return &types.ErrorUnionType{Child: child, Tag: p.tt.errTag}, nil
	case p.acceptKeyword("fn"):
		return p.parseFuncType()
	}

	name := p.ident()
	if name == "" {
		return nil, errors.Errorf("expected a type at column %d", p.pos+1)
	}

	return p.tt.lookup(name)
}

func (p *typeParser) parseFuncType() (types.Type, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}

	ft := &types.FuncType{}
	for !p.accept(")") {
		if len(ft.Params) > 0 || ft.Variadic {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}

		if p.accept("...") {
			ft.Variadic = true
			continue
		}

		pt, err := p.parseType()
		if err != nil {
			return nil, err
		}

		ft.Params = append(ft.Params, &types.FuncParam{Type: pt})
	}

	ret, err := p.parseType()
	if err != nil {
		return nil, err
	}

	ft.Return = ret
	return ft, nil
}

// lookup resolves a type name: a builtin type or a type declared by the
// program.
func (tt *typeTable) lookup(name string) (types.Type, error) {
	switch name {
	case "bool":
		return types.Bool, nil
	case "void":
		return types.Void, nil
	case "unreachable":
		return types.Unreachable, nil
	case "usize":
		return &types.IntType{Bits: tt.ptrBits, PtrSized: true}, nil
	case "isize":
		return &types.IntType{Bits: tt.ptrBits, Signed: true, PtrSized: true}, nil
	case "error":
		return &types.ErrorSetType{Tag: tt.errTag}, nil
	}

	if t, ok := cTypes[name]; ok {
		return t, nil
	}

	if kind, ok := comptimeTypes[name]; ok {
		return &types.ComptimeType{Kind: kind}, nil
	}

	if t, ok := tt.named[name]; ok {
		return t, nil
	}

	if len(name) > 1 {
		if bits, err := strconv.Atoi(name[1:]); err == nil && bits >= 0 {
			switch name[0] {
			case 'i':
				return &types.IntType{Bits: bits, Signed: true}, nil
			case 'u':
				return &types.IntType{Bits: bits}, nil
			case 'f':
				switch bits {
				case 16, 32, 64, 80, 128:
					return &types.FloatType{Bits: bits}, nil
				}
			}
		}
	}

	return nil, errors.Errorf("unknown type `%s`", name)
}
