// Package cmd is the top-level "driver" package for lowerc: it contains all the
// functionality for parsing command-line arguments, loading build profiles, and
// running the various phases of a build.
package cmd

import (
	"os"
	"path/filepath"

	"lowerc/codegen"
	"lowerc/common"
	"lowerc/ir"
	"lowerc/irload"
	"lowerc/report"

	llir "github.com/llir/llvm/ir"
)

// Compiler represents the state of a single build.
type Compiler struct {
	// progPath is the absolute path to the program description.
	progPath string

	// profile is the build profile of the compiler.
	profile *BuildProfile

	// prog is the loaded program.
	prog *ir.Program

	// mod is the generated LLVM module.
	mod *llir.Module

	// outputPath is the path of the build output without its extension.
	outputPath string
}

// NewCompiler creates a new compiler for the program at progPath.
func NewCompiler(progPath string, profile *BuildProfile) *Compiler {
	absPath, err := filepath.Abs(progPath)
	if err != nil {
		report.ReportFatal("error calculating absolute path: %s", err)
	}

	return &Compiler{
		progPath: absPath,
		profile:  profile,
	}
}

// Run runs the build and returns its exit status.  Fatal errors exit the
// process directly.
func (c *Compiler) Run() int {
	defer report.CatchErrors()

	c.load()

	target := c.prog.Target.Triple
	if target == "" {
		target = "host"
	}

	report.ReportCompileHeader(common.LowercVersion, target)
	report.ReportVerboseValue("Profile", c.profile)

	// Header-only builds never lower the program.
	if c.profile.OutputKind == codegen.OutputHeader {
		report.ReportBeginPhase("Emitting")
		c.emitHeader()
		report.ReportCompilationFinished(c.outputPath + ".h")
		return 0
	}

	if !c.lower() {
		return 0
	}

	finalPath := c.emit()
	report.ReportCompilationFinished(finalPath)
	return 0
}

// load loads the program and determines the output path.
func (c *Compiler) load() {
	prog, err := irload.Load(c.progPath)
	if err != nil {
		report.ReportFatal("%s", err)
	}

	c.prog = prog

	c.outputPath = c.profile.OutputPath
	if c.outputPath == "" {
		name := prog.Name
		if name == "" {
			name = stem(c.progPath)
		}

		c.outputPath = filepath.Join(filepath.Dir(c.progPath), name)
	}
}

// stem returns the base name of path without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// writeOutputFile is used to quickly write an output file for the compiler.
func writeOutputFile(fpath string, write func(f *os.File) error) {
	if dir := filepath.Dir(fpath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			report.ReportFatal("failed to create output directory `%s`: %s", dir, err)
		}
	}

	file, err := os.OpenFile(fpath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		report.ReportFatal("failed to open output file `%s`: %s", fpath, err)
	}
	defer file.Close()

	if err := write(file); err != nil {
		report.ReportFatal("failed to write output to file `%s`: %s", fpath, err)
	}
}
