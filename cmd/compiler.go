package cmd

import (
	"os"
	"path/filepath"
	"runtime"

	"lowerc/codegen"
	"lowerc/header"
	"lowerc/report"

	"github.com/pkg/errors"
)

// lower runs the lowering phase.  It returns false if there is nothing left to
// build.
func (c *Compiler) lower() bool {
	report.ReportBeginPhase("Lowering")

	mod, err := codegen.Generate(c.prog, c.profile.Options(filepath.Base(c.outputPath)))
	if err != nil {
		if errors.Cause(err) == codegen.ErrNoTests {
			report.ReportEndPhase()
			report.DisplayInfoMessage("Test", "No tests to run.")
			return false
		}

		report.ReportFatal("%s", err)
	}

	c.mod = mod
	return true
}

// emit writes the build output selected by the profile and returns the path of
// the final artifact.
func (c *Compiler) emit() string {
	report.ReportBeginPhase("Emitting")

	if c.profile.EmitHeader {
		c.emitHeader()
	}

	if c.profile.OutputKind == codegen.OutputLLVM {
		llPath := c.outputPath + ".ll"
		writeOutputFile(llPath, func(f *os.File) error {
			_, err := f.WriteString(c.mod.String())
			return err
		})

		return llPath
	}

	tc, err := newToolchain(c.profile)
	if err != nil {
		report.ReportFatal("%s", err)
	}

	finalPath, err := c.build(tc)
	tc.cleanup()

	if err != nil {
		report.ReportFatal("%s", err)
	}

	return finalPath
}

// build compiles the module to an object file and, if the profile requests it,
// links the object file.
func (c *Compiler) build(tc *toolchain) (string, error) {
	ext := c.outputExts()

	if c.profile.OutputKind == codegen.OutputObj {
		objPath := c.outputPath + ext.obj
		if err := tc.compileModule(c.mod, objPath); err != nil {
			return "", errors.Wrap(err, "failed to run llc")
		}

		return objPath, nil
	}

	objPath := tc.tempPath(filepath.Base(c.outputPath) + ext.obj)
	if err := tc.compileModule(c.mod, objPath); err != nil {
		return "", errors.Wrap(err, "failed to run llc")
	}

	report.ReportBeginPhase("Linking")

	shared := c.profile.OutputKind == codegen.OutputLib
	outPath := c.outputPath + ext.exe
	if shared {
		outPath = c.outputPath + ext.lib
	}

	if err := tc.link([]string{objPath}, outPath, shared); err != nil {
		return "", err
	}

	return outPath, nil
}

// emitHeader writes the C header of the program next to the build output.
func (c *Compiler) emitHeader() {
	writeOutputFile(c.outputPath+".h", func(f *os.File) error {
		return header.Write(f, c.prog, filepath.Base(c.outputPath))
	})
}

// outputExts holds the file extensions of the native outputs of a target.
type outputExts struct {
	obj, exe, lib string
}

// outputExts returns the file extensions for the target operating system.
func (c *Compiler) outputExts() outputExts {
	goos := c.prog.Target.OS
	if goos == "" {
		goos = runtime.GOOS
	}

	switch goos {
	case "windows":
		return outputExts{obj: ".obj", exe: ".exe", lib: ".dll"}
	case "darwin", "macos":
		return outputExts{obj: ".o", lib: ".dylib"}
	default:
		return outputExts{obj: ".o", lib: ".so"}
	}
}
