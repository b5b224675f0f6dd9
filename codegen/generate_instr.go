package codegen

import (
	"lowerc/ir"
	"lowerc/report"

	llir "github.com/llir/llvm/ir"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// genBlock lowers every live instruction of bb into its generated block.
func (g *Generator) genBlock(bb *ir.BasicBlock) {
	g.block = g.blocks[bb]

	for _, instr := range bb.Instrs {
		if ct, ok := instr.(*ir.Comptime); ok {
			report.ICE("compile-time operation `%s` reached code generation", ct.OpName())
		}

		if instr.Base().RefCount == 0 && !instr.HasSideEffects() {
			continue
		}

		mark := g.mark()
		if v := g.genInstr(instr); v != nil {
			g.values[instr] = v
		}

		if g.dbg != nil {
			g.dbg.stamp(mark, instr)
		}
	}

	// Safety checks may have moved generation into a new block: branches out
	// of bb leave from that block.
	g.exitBlocks[bb] = g.block
}

// genInstr lowers a single instruction and returns its value.  Instructions
// which produce no value return nil.
func (g *Generator) genInstr(instr ir.Instruction) value.Value {
	switch v := instr.(type) {
	case *ir.Return:
		g.genReturn(v)
	case *ir.DeclVar:
		g.genDeclVar(v)
	case *ir.BinOp:
		return g.genBinOp(v)
	case *ir.Cast:
		return g.genCast(v)
	case *ir.Unreachable:
		if g.wantSafety(v) || g.opts.Test {
			g.genSafetyCrash()
		} else {
			g.block.NewUnreachable()
		}
	case *ir.CondBr:
		g.block.NewCondBr(g.operand(v.Cond), g.blocks[v.Then], g.blocks[v.Else])
	case *ir.Br:
		g.block.NewBr(g.blocks[v.Dest])
	case *ir.UnOp:
		return g.genUnOp(v)
	case *ir.LoadPtr:
		return g.genLoadPtr(v)
	case *ir.StorePtr:
		g.genStorePtr(v)
	case *ir.VarPtr:
		return g.genVarPtr(v)
	case *ir.ElemPtr:
		return g.genElemPtr(v)
	case *ir.Call:
		return g.genCall(v)
	case *ir.StructFieldPtr:
		return g.genStructFieldPtr(v)
	case *ir.EnumFieldPtr:
		return g.genEnumFieldPtr(v)
	case *ir.Asm:
		return g.genAsm(v)
	case *ir.TestNull:
		return g.genTestNull(v)
	case *ir.UnwrapMaybe:
		return g.genUnwrapMaybe(v)
	case *ir.Clz:
		return g.genCountZeroes("ctlz", g.operand(v.Value))
	case *ir.Ctz:
		return g.genCountZeroes("cttz", g.operand(v.Value))
	case *ir.SwitchBr:
		g.genSwitchBr(v)
	case *ir.Phi:
		return g.genPhi(v)
	case *ir.Ref:
		return g.genRef(v)
	case *ir.ErrName:
		return g.genErrName(v)
	case *ir.StructInit:
		return g.genStructInit(v)
	case *ir.ContainerInitList:
		return g.genContainerInitList(v)
	case *ir.EnumTag:
		return g.genEnumTag(v)
	case *ir.Const:
		report.ICE("constant %%%d found in a basic block", v.ID)
	case *ir.Comptime:
		report.ICE("compile-time operation `%s` reached code generation", v.OpName())
	default:
		report.ICE("unknown instruction: %s", instr.OpName())
	}

	return nil
}

// -----------------------------------------------------------------------------

func (g *Generator) genSwitchBr(instr *ir.SwitchBr) {
	cases := make([]*llir.Case, len(instr.Cases))
	for i, c := range instr.Cases {
		cases[i] = llir.NewCase(g.constValue(c.Value), g.blocks[c.Block])
	}

	g.block.NewSwitch(g.operand(instr.Target), g.blocks[instr.Else], cases...)
}

// genPhi creates a phi node.  Its incoming edges are added once the whole
// function has been lowered.
func (g *Generator) genPhi(instr *ir.Phi) value.Value {
	l := g.layoutOf(instr.Type)
	if !l.HasBits() {
		return nil
	}

	// The incoming edges are empty until resolvePhis runs, so the type has to
	// be set up front: llir derives it from the first incoming value.
	phi := &llir.InstPhi{Typ: l.Type}
	if l.ByRef {
		phi.Typ = lltypes.NewPointer(l.Type)
	}

	g.block.Insts = append(g.block.Insts, phi)

	g.phis = append(g.phis, pendingPhi{phi: phi, instr: instr})
	return phi
}

// resolvePhis adds the incoming edges of every phi of the current function.
func (g *Generator) resolvePhis() {
	for _, p := range g.phis {
		for _, inc := range p.instr.Incoming {
			pred, ok := g.exitBlocks[inc.Block]
			if !ok {
				report.ICE("phi %%%d has an incoming edge from a block which was not lowered", p.instr.ID)
			}

			p.phi.Incs = append(p.phi.Incs, llir.NewIncoming(g.operand(inc.Value), pred))
		}
	}

	g.phis = nil
}

// -----------------------------------------------------------------------------

// genMark records the generation position before an instruction is lowered.
type genMark struct {
	block      *llir.Block
	instrCount int
	blockCount int
}

func (g *Generator) mark() genMark {
	return genMark{block: g.block, instrCount: len(g.block.Insts), blockCount: len(g.llFunc.Blocks)}
}
