// Package codegen lowers a fully analyzed program to an LLVM module.
package codegen

import (
	"fmt"

	"lowerc/ir"
	"lowerc/report"
	"lowerc/types"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

// ErrNoTests is returned when a test build contains no test functions.
var ErrNoTests = errors.New("no tests to run")

// OutputKind enumerates the kinds of artifacts a build can produce.
type OutputKind int

// Enumeration of output kinds.
const (
	OutputLLVM OutputKind = iota
	OutputObj
	OutputExe
	OutputLib
	OutputHeader
)

// Options configures a single code generation pass.
type Options struct {
	// Release disables all runtime safety checks and module verification.
	Release bool

	// Test builds only test functions and emits the test table.
	Test bool

	// Static marks every exported definition as DSO-local.
	Static bool

	// Strip suppresses all debug information.
	Strip bool

	// Verbose dumps the generated module to the reporter.
	Verbose bool

	// CheckUnused warns about locals which are never used.
	CheckUnused bool

	// OutName names the module when the program is unnamed.
	OutName string

	// OutKind selects the symbol attributes of exported definitions.
	OutKind OutputKind
}

// Generator is responsible for converting a program into an LLVM module. One
// generator is used for exactly one program.
type Generator struct {
	prog *ir.Program
	opts Options

	// mod is the LLVM module being generated.
	mod *llir.Module

	// usize is the pointer-sized integer type of the target.
	usize  *lltypes.IntType
	usizeT *types.IntType

	// layouts caches the layout of each type by descriptor identity.
	layouts map[types.Type]*Layout

	// sigs caches the lowered signature of each function type.
	sigs map[*types.FuncType]*funcSig

	// structDefs caches the named LLVM struct of each struct and enum type.
	structDefs map[types.Type]*lltypes.StructType

	// typeNames counts the uses of each type definition name.
	typeNames map[string]int

	consts *constCache

	// funcs maps each function to its LLVM function.  Functions are declared
	// lazily the first time they are referenced.
	funcs map[*ir.Function]*llir.Func

	// intrinsics maps intrinsic names to their declarations.
	intrinsics map[string]*llir.Func

	// errNameTable is the global table of error names.
	errNameTable *llir.Global

	// dbg is nil when debug information is stripped.
	dbg *debugInfo

	// The state of the function currently being generated.
	fn         *ir.Function
	llFunc     *llir.Func
	block      *llir.Block
	retPtr     value.Value
	values     map[ir.Instruction]value.Value
	temps      map[ir.Instruction]*llir.InstAlloca
	vars       map[*ir.Variable]value.Value
	blocks     map[*ir.BasicBlock]*llir.Block
	exitBlocks map[*ir.BasicBlock]*llir.Block
	phis       []pendingPhi
	localNames map[string]int
}

// NewGenerator creates a new generator for prog.
func NewGenerator(prog *ir.Program, opts Options) *Generator {
	ptrBits := prog.Target.PointerBits
	if ptrBits == 0 {
		ptrBits = 64
	}

	g := &Generator{
		prog:       prog,
		opts:       opts,
		mod:        llir.NewModule(),
		usize:      lltypes.NewInt(uint64(ptrBits)),
		usizeT:     &types.IntType{Bits: ptrBits, PtrSized: true},
		layouts:    make(map[types.Type]*Layout),
		sigs:       make(map[*types.FuncType]*funcSig),
		structDefs: make(map[types.Type]*lltypes.StructType),
		typeNames:  make(map[string]int),
		consts:     newConstCache(),
		funcs:      make(map[*ir.Function]*llir.Func),
		intrinsics: make(map[string]*llir.Func),
	}

	g.mod.SourceFilename = prog.Name
	if g.mod.SourceFilename == "" {
		g.mod.SourceFilename = opts.OutName
	}
	g.mod.TargetTriple = prog.Target.Triple
	g.mod.DataLayout = prog.Target.DataLayout

	if !opts.Strip {
		g.dbg = newDebugInfo(g)
	}

	return g
}

// Generate lowers prog to an LLVM module.
func Generate(prog *ir.Program, opts Options) (*llir.Module, error) {
	return NewGenerator(prog, opts).Generate()
}

// Generate runs code generation for the whole program.  This generation
// process is assumed to always succeed: the only error returned is
// ErrNoTests.  Any other failure is an internal compiler error.
func (g *Generator) Generate() (*llir.Module, error) {
	if g.prog.ErrorCount > 0 {
		report.ICE("code generation started with %d outstanding errors", g.prog.ErrorCount)
	}

	g.declareShims()
	g.discardUnusedShims()
	g.genErrNameTable()
	g.genGlobals()

	if g.opts.Test {
		if err := g.genTestTable(); err != nil {
			return nil, err
		}
	}

	g.genPrototypes()

	for _, fn := range g.prog.Definitions {
		if !g.skipFunc(fn) {
			g.genFuncDef(fn)
		}
	}

	if g.dbg != nil {
		g.dbg.finalize()
	}

	if !g.opts.Release {
		g.verify()
	}

	if g.opts.Verbose {
		report.ReportVerbose("%s", g.mod.String())
	}

	return g.mod, nil
}

// skipFunc returns whether fn is filtered out of the current build.
func (g *Generator) skipFunc(fn *ir.Function) bool {
	if g.opts.Test {
		return !fn.IsTest && fn == g.prog.Main
	}

	return fn.IsTest
}

// -----------------------------------------------------------------------------

// funcDecl returns the LLVM function of fn, declaring it if necessary.
func (g *Generator) funcDecl(fn *ir.Function) *llir.Func {
	if llFunc, ok := g.funcs[fn]; ok {
		return llFunc
	}

	// Calls to intrinsics declared by the program use the backend's own
	// declaration.
	if intrinsic, ok := g.intrinsics[fn.Name]; ok {
		g.funcs[fn] = intrinsic
		return intrinsic
	}

	sig := g.sigOf(fn.Type)

	params := make([]*llir.Param, len(sig.Type.Params))
	for i, pt := range sig.Type.Params {
		params[i] = llir.NewParam("", pt)
	}

	if sig.SRet {
		params[0].SetName("ret")
	}

	for i, genNdx := range sig.Params {
		if genNdx >= 0 && i < len(fn.ParamNames) {
			params[genNdx].SetName(fn.ParamNames[i])
		}
	}

	name := fn.Name
	if fn.Internal {
		name = "_" + name
	}

	llFunc := g.mod.NewFunc(name, sig.Type.RetType, params...)
	llFunc.Sig.Variadic = sig.Type.Variadic

	if fn.Internal {
		llFunc.Linkage = enum.LinkageInternal
	} else if fn.IsDefinition() {
		// Statically linked definitions can never be preempted.
		if g.opts.Static {
			llFunc.Preemption = enum.PreemptionDSOLocal
		}

		if g.opts.OutKind == OutputLib && g.prog.Target.OS == "windows" {
			llFunc.DLLStorageClass = enum.DLLStorageClassDLLExport
		}
	}

	llFunc.CallingConv = callConvOf(fn.Type.CallConv)

	g.funcs[fn] = llFunc
	return llFunc
}

// intrinsic returns the declaration of the named intrinsic, declaring it with
// the given signature on first use.
func (g *Generator) intrinsic(name string, retType lltypes.Type, paramTypes ...lltypes.Type) *llir.Func {
	if fn, ok := g.intrinsics[name]; ok {
		return fn
	}

	params := make([]*llir.Param, len(paramTypes))
	for i, pt := range paramTypes {
		params[i] = llir.NewParam("", pt)
	}

	fn := g.mod.NewFunc(name, retType, params...)
	fn.FuncAttrs = append(fn.FuncAttrs, enum.FuncAttrNoUnwind)
	g.intrinsics[name] = fn
	return fn
}

// -----------------------------------------------------------------------------

// pendingPhi is a phi whose incoming edges are resolved once every block of
// the function has been lowered: the exit blocks of back edges are not known
// when the phi itself is lowered.
type pendingPhi struct {
	phi   *llir.InstPhi
	instr *ir.Phi
}

// resetFuncState prepares the generator to lower llFunc.
func (g *Generator) resetFuncState(fn *ir.Function, llFunc *llir.Func) {
	g.fn = fn
	g.llFunc = llFunc
	g.block = nil
	g.retPtr = nil
	g.values = make(map[ir.Instruction]value.Value)
	g.temps = make(map[ir.Instruction]*llir.InstAlloca)
	g.vars = make(map[*ir.Variable]value.Value)
	g.blocks = make(map[*ir.BasicBlock]*llir.Block)
	g.exitBlocks = make(map[*ir.BasicBlock]*llir.Block)
	g.phis = nil
	g.localNames = make(map[string]int)

	for _, param := range llFunc.Params {
		if name := param.Name(); name != "" {
			g.localNames[name]++
		}
	}
}

// appendBlock appends a new block to the current function.  Block names are
// made unique within the function.
func (g *Generator) appendBlock(name string) *llir.Block {
	if name == "" {
		name = "Block"
	}

	return g.llFunc.NewBlock(g.localName(name))
}

// localName makes name unique among the locals of the current function.
func (g *Generator) localName(name string) string {
	n := g.localNames[name]
	g.localNames[name] = n + 1
	if n > 0 {
		return fmt.Sprintf("%s.%d", name, n)
	}

	return name
}

// operand returns the lowered value of an instruction operand.  Operands
// without any bits have no value and are nil.
func (g *Generator) operand(instr ir.Instruction) value.Value {
	if c, ok := instr.(*ir.Const); ok {
		return g.constOperand(c.Value)
	}

	if v, ok := g.values[instr]; ok {
		return v
	}

	if !g.hasBits(instr.Base().Type) {
		return nil
	}

	report.ICE("operand %%%d (%s) used before it was lowered", instr.Base().ID, instr.OpName())
	return nil
}

// tempSlot returns the stack temporary allocated for instr.
func (g *Generator) tempSlot(instr ir.Instruction) *llir.InstAlloca {
	slot, ok := g.temps[instr]
	if !ok {
		report.ICE("%s instruction %%%d has no temporary slot", instr.OpName(), instr.Base().ID)
	}

	return slot
}
