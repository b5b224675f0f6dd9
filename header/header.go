// Package header emits C header files declaring the externally visible
// functions of a program.
package header

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"lowerc/ir"
	"lowerc/types"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnsupportedType is returned when a function signature uses a type which
// has no C equivalent in headers.
var ErrUnsupportedType = errors.New("type cannot be used in a C header")

// emitter accumulates the declarations of a header and the includes they
// require.
type emitter struct {
	decls strings.Builder

	wantStdbool bool
	wantStdint  bool
}

// Write writes the C header of prog to w.  name is the output name the header
// macros are derived from.
func Write(w io.Writer, prog *ir.Program, name string) error {
	macro := MacroName(name)
	exportMacro := macro + "_EXPORT"
	externMacro := macro + "_EXTERN_C"

	e := &emitter{}
	for _, fn := range prog.Definitions {
		if fn.Internal || fn.IsTest {
			continue
		}

		if err := e.declare(exportMacro, fn); err != nil {
			return err
		}
	}

	guard := macro + "_H"

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "#ifndef %s\n", guard)
	fmt.Fprintf(sb, "#define %s\n\n", guard)

	if e.wantStdbool {
		sb.WriteString("#include <stdbool.h>\n")
	}

	if e.wantStdint {
		sb.WriteString("#include <stdint.h>\n")
	}

	if e.wantStdbool || e.wantStdint {
		sb.WriteString("\n")
	}

	sb.WriteString("#ifdef __cplusplus\n")
	fmt.Fprintf(sb, "#define %s extern \"C\"\n", externMacro)
	sb.WriteString("#else\n")
	fmt.Fprintf(sb, "#define %s\n", externMacro)
	sb.WriteString("#endif\n\n")

	sb.WriteString("#if defined(_WIN32)\n")
	fmt.Fprintf(sb, "#define %s %s __declspec(dllimport)\n", exportMacro, externMacro)
	sb.WriteString("#else\n")
	fmt.Fprintf(sb, "#define %s %s __attribute__((visibility(\"default\")))\n", exportMacro, externMacro)
	sb.WriteString("#endif\n\n")

	sb.WriteString(e.decls.String())
	sb.WriteString("\n#endif\n")

	_, err := io.WriteString(w, sb.String())
	return errors.Wrap(err, "writing header")
}

// declare appends the prototype of fn.
func (e *emitter) declare(exportMacro string, fn *ir.Function) error {
	ret, err := e.cType(fn.Type.Return)
	if err != nil {
		return errors.Wrapf(err, "return type of `%s`", fn.Name)
	}

	fmt.Fprintf(&e.decls, "%s %s %s(", exportMacro, ret, fn.Name)

	if len(fn.Type.Params) == 0 {
		e.decls.WriteString("void);\n")
		return nil
	}

	for i, param := range fn.Type.Params {
		pt, err := e.cType(param.Type)
		if err != nil {
			return errors.Wrapf(err, "parameter %d of `%s`", i, fn.Name)
		}

		if i > 0 {
			e.decls.WriteString(", ")
		}

		e.decls.WriteString(pt)
		if param.NoAlias && strings.HasSuffix(pt, "*") {
			e.decls.WriteString("restrict")
		}

		if i < len(fn.ParamNames) && fn.ParamNames[i] != "" {
			if !strings.HasSuffix(pt, "*") || param.NoAlias {
				e.decls.WriteByte(' ')
			}

			e.decls.WriteString(fn.ParamNames[i])
		}
	}

	e.decls.WriteString(");\n")
	return nil
}

// cType returns the C spelling of typ.
func (e *emitter) cType(typ types.Type) (string, error) {
	switch t := typ.(type) {
	case *types.VoidType:
		return "void", nil
	case *types.UnreachableType:
		return "__attribute__((__noreturn__)) void", nil
	case *types.BoolType:
		e.wantStdbool = true
		return "bool", nil
	case *types.IntType:
		switch {
		case t.CName != "":
			return t.CName, nil
		case t.PtrSized:
			e.wantStdint = true
			if t.Signed {
				return "intptr_t", nil
			}

			return "uintptr_t", nil
		}

		switch t.Bits {
		case 8, 16, 32, 64:
			e.wantStdint = true
			if t.Signed {
				return fmt.Sprintf("int%d_t", t.Bits), nil
			}

			return fmt.Sprintf("uint%d_t", t.Bits), nil
		}
	case *types.FloatType:
		if t.CName != "" {
			return t.CName, nil
		}

		switch t.Bits {
		case 32:
			return "float", nil
		case 64:
			return "double", nil
		}
	case *types.PointerType:
		elem, err := e.cType(t.Elem)
		if err != nil {
			return "", err
		}

		if t.Const {
			return "const " + elem + " *", nil
		}

		return elem + " *", nil
	case *types.OptionalType:
		if _, ok := t.Child.(*types.PointerType); ok {
			return e.cType(t.Child)
		}
	}

	return "", errors.Wrapf(ErrUnsupportedType, "`%s`", typ.Repr())
}

// MacroName returns the prefix of the macros of the header for the output
// name: the name upper-cased with every rune which cannot appear in a C
// identifier replaced by an underscore.
func MacroName(name string) string {
	upper := cases.Upper(language.Und).String(name)

	macro := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return r
		}

		return '_'
	}, upper)

	if macro == "" || unicode.IsDigit(rune(macro[0])) {
		macro = "_" + macro
	}

	return macro
}
