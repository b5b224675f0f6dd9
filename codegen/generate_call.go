package codegen

import (
	"fmt"
	"strings"

	"lowerc/ir"
	"lowerc/report"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

func (g *Generator) genCall(instr *ir.Call) value.Value {
	var ft *types.FuncType
	var callee value.Value
	if instr.Fn != nil {
		ft = instr.Fn.Type
		callee = g.funcDecl(instr.Fn)
	} else {
		var ok bool
		if ft, ok = instr.FnValue.Base().Type.(*types.FuncType); !ok {
			report.ICE("call of value of type `%s`", instr.FnValue.Base().Type.Repr())
		}

		callee = g.operand(instr.FnValue)
	}

	sig := g.sigOf(ft)

	var args []value.Value
	if sig.SRet {
		args = append(args, g.tempSlot(instr))
	}

	for i, arg := range instr.Args {
		if i < len(sig.Params) {
			if sig.Params[i] < 0 {
				continue
			}
		} else if !g.hasBits(arg.Base().Type) {
			continue
		}

		args = append(args, g.operand(arg))
	}

	call := g.block.NewCall(callee, args...)
	call.CallingConv = callConvOf(ft.CallConv)

	if _, ok := ft.Return.(*types.UnreachableType); ok {
		g.block.NewUnreachable()
		return nil
	}

	rl := g.layoutOf(ft.Return)
	switch {
	case sig.SRet:
		return g.tempSlot(instr)
	case !rl.HasBits():
		return nil
	case rl.ByRef:
		// Extern functions return aggregates directly.
		slot := g.tempSlot(instr)
		g.block.NewStore(call, slot)
		return slot
	}

	return call
}

func callConvOf(cc types.CallConv) enum.CallingConv {
	switch cc {
	case types.CallConvC:
		return enum.CallingConvC
	case types.CallConvFast:
		return enum.CallingConvFast
	case types.CallConvCold:
		return enum.CallingConvCold
	}

	return enum.CallingConvNone
}

func (g *Generator) genReturn(instr *ir.Return) {
	if instr.Value == nil {
		g.block.NewRet(nil)
		return
	}

	typ := instr.Value.Base().Type
	val := g.operand(instr.Value)
	rl := g.layoutOf(typ)

	switch {
	case !rl.HasBits():
		g.block.NewRet(nil)
	case g.retPtr != nil:
		g.storeValue(val, g.retPtr, typ)
		g.block.NewRet(nil)
	case rl.ByRef:
		g.block.NewRet(g.block.NewLoad(rl.Type, val))
	default:
		g.block.NewRet(val)
	}
}

// -----------------------------------------------------------------------------

// genAsm generates an inline assembly call.  Named operand references in the
// template are rewritten to positional ones and the constraint string is built
// from the operand lists.
func (g *Generator) genAsm(instr *ir.Asm) value.Value {
	template, err := asmTemplate(instr)
	if err != nil {
		report.ICE("%s", err)
	}

	var constraints []string
	var paramTypes []lltypes.Type
	var args []value.Value

	retType := lltypes.Type(lltypes.Void)
	for _, out := range instr.Outputs {
		c := strings.TrimPrefix(out.Constraint, "=")
		if out.Var == nil {
			constraints = append(constraints, "="+c)
			if l := g.layoutOf(instr.Type); l.HasBits() {
				retType = l.Type
			}

			continue
		}

		constraints = append(constraints, "=*"+c)
		slot, ok := g.vars[out.Var]
		if !ok {
			report.ICE("assembly output variable `%s` has no stack slot", out.Var.Name)
		}

		paramTypes = append(paramTypes, slot.Type())
		args = append(args, slot)
	}

	for _, in := range instr.Inputs {
		constraints = append(constraints, in.Constraint)

		arg := g.operand(in.Value)
		paramTypes = append(paramTypes, arg.Type())
		args = append(args, arg)
	}

	for _, clobber := range instr.Clobbers {
		constraints = append(constraints, fmt.Sprintf("~{%s}", strings.TrimPrefix(clobber, "%")))
	}

	asm := llir.NewInlineAsm(
		lltypes.NewPointer(lltypes.NewFunc(retType, paramTypes...)),
		template,
		strings.Join(constraints, ","),
	)
	asm.SideEffect = instr.Volatile || len(instr.Outputs) == 0

	call := g.block.NewCall(asm, args...)
	if retType.Equal(lltypes.Void) {
		return nil
	}

	return call
}

// asmTemplate rewrites an assembly template to LLVM syntax: `$` is escaped,
// `%%` becomes a literal percent sign, and `%[name]` becomes `$N` where N is
// the position of the named operand among the outputs and then the inputs.
func asmTemplate(instr *ir.Asm) (string, error) {
	sb := strings.Builder{}
	src := instr.Template

	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '$':
			sb.WriteString("$$")
		case '%':
			if i+1 < len(src) && src[i+1] == '%' {
				sb.WriteByte('%')
				i++
			} else if i+1 < len(src) && src[i+1] == '[' {
				end := strings.IndexByte(src[i:], ']')
				if end < 0 {
					return "", errors.Errorf("unterminated operand reference in assembly template")
				}

				name := src[i+2 : i+end]
				ndx := asmOperandIndex(instr, name)
				if ndx < 0 {
					return "", errors.Errorf("unknown assembly operand `%s`", name)
				}

				fmt.Fprintf(&sb, "$%d", ndx)
				i += end
			} else {
				sb.WriteByte(c)
			}
		default:
			sb.WriteByte(c)
		}
	}

	return sb.String(), nil
}

func asmOperandIndex(instr *ir.Asm, name string) int {
	for i, out := range instr.Outputs {
		if out.Name == name {
			return i
		}
	}

	for i, in := range instr.Inputs {
		if in.Name == name {
			return len(instr.Outputs) + i
		}
	}

	return -1
}
