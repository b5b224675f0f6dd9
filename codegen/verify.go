package codegen

import (
	"lowerc/report"

	llir "github.com/llir/llvm/ir"
)

// verify checks the structure of the generated module: every defined function
// has an entry block, every block is terminated, and all branch targets and
// phi predecessors belong to the same function.  Failures are internal
// compiler errors.
func (g *Generator) verify() {
	for _, fn := range g.mod.Funcs {
		if len(fn.Blocks) == 0 {
			continue
		}

		if err := verifyFunc(fn); err != "" {
			report.ICE("module verification failed in function `%s`: %s", fn.Name(), err)
		}
	}
}

func verifyFunc(fn *llir.Func) string {
	owned := make(map[*llir.Block]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		owned[b] = true
	}

	for _, b := range fn.Blocks {
		if b.Term == nil {
			return "block `" + b.Name() + "` has no terminator"
		}

		for _, succ := range b.Term.Succs() {
			if !owned[succ] {
				return "block `" + b.Name() + "` branches out of its function"
			}
		}

		for _, inst := range b.Insts {
			phi, ok := inst.(*llir.InstPhi)
			if !ok {
				continue
			}

			for _, inc := range phi.Incs {
				pred, ok := inc.Pred.(*llir.Block)
				if !ok || !owned[pred] {
					return "phi in block `" + b.Name() + "` has a foreign predecessor"
				}
			}
		}
	}

	return ""
}
