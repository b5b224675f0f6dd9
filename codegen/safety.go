package codegen

import (
	"lowerc/ir"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/value"
)

// wantSafety returns whether runtime safety checks should be generated for
// instr.
func (g *Generator) wantSafety(instr ir.Instruction) bool {
	return g.safetyEnabled(instr.Base().Scope)
}

// safetyEnabled returns whether runtime safety checks are enabled in scope.
// The nearest enclosing scope which sets the safety mode decides: checks are
// enabled by default.  Release builds never check.
func (g *Generator) safetyEnabled(scope *ir.Scope) bool {
	if g.opts.Release {
		return false
	}

	for ; scope != nil; scope = scope.Parent {
		if scope.SafetySet {
			return !scope.SafetyOff
		}
	}

	return true
}

// genSafetyCrash terminates the current block with a trap.  In test builds,
// the trap is one a test runner or debugger can resume from.
func (g *Generator) genSafetyCrash() {
	call := g.block.NewCall(g.trapFn())
	call.Tail = enum.TailNoTail
	g.block.NewUnreachable()
}

// checkBlocks appends the blocks of a safety check of the given kind: the
// block control continues in when the check passes and the block which traps.
// Double checks also get a block for when only the first check has passed.
func (g *Generator) checkBlocks(kind string, double bool) (ok, fail, mid *llir.Block) {
	fail = g.appendBlock(kind + "Fail")
	ok = g.appendBlock(kind + "Ok")

	if double {
		mid = g.appendBlock("First" + kind + "Ok")
	}

	return
}

// guard traps unless okBit is set.  Generation continues in the block where
// the check passed.
func (g *Generator) guard(kind string, okBit value.Value) {
	ok, fail, _ := g.checkBlocks(kind, false)
	g.block.NewCondBr(okBit, ok, fail)

	g.block = fail
	g.genSafetyCrash()

	g.block = ok
}

// guardFail traps if failBit is set.
func (g *Generator) guardFail(kind string, failBit value.Value) {
	ok, fail, _ := g.checkBlocks(kind, false)
	g.block.NewCondBr(failBit, fail, ok)

	g.block = fail
	g.genSafetyCrash()

	g.block = ok
}

// boundsCheck traps unless `target lowerPred lower` and `target upperPred
// upper` both hold.  Either bound may be nil: a check with a single bound
// performs a single comparison.
func (g *Generator) boundsCheck(target value.Value, lowerPred enum.IPred, lower value.Value, upperPred enum.IPred, upper value.Value) {
	if lower == nil && upper == nil {
		return
	}

	if lower == nil {
		lower, lowerPred = upper, upperPred
		upper = nil
	}

	ok, fail, mid := g.checkBlocks("BoundsCheck", upper != nil)
	lowerOk := ok
	if mid != nil {
		lowerOk = mid
	}

	g.block.NewCondBr(g.block.NewICmp(lowerPred, target, lower), lowerOk, fail)

	g.block = fail
	g.genSafetyCrash()

	if upper != nil {
		g.block = mid
		g.block.NewCondBr(g.block.NewICmp(upperPred, target, upper), ok, fail)
	}

	g.block = ok
}
