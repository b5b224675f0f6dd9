package cmd

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"

	"lowerc/common"
	"lowerc/report"

	"github.com/google/uuid"
	llir "github.com/llir/llvm/ir"
	"github.com/pkg/errors"
)

// toolchain runs the external tools of a build.  Intermediate files are placed
// in a scratch directory which is unique to the build.
type toolchain struct {
	profile *BuildProfile

	// workDir is the scratch directory of the build.
	workDir string
}

// newToolchain creates the scratch directory for a build using profile.
func newToolchain(profile *BuildProfile) (*toolchain, error) {
	workDir := filepath.Join(os.TempDir(), common.TempDirPrefix+uuid.NewString())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create temporary directory")
	}

	report.ReportVerbose("using scratch directory %s", workDir)
	return &toolchain{profile: profile, workDir: workDir}, nil
}

// tempPath returns the path of the named file in the scratch directory.
func (tc *toolchain) tempPath(name string) string {
	return filepath.Join(tc.workDir, name)
}

// cleanup removes the scratch directory.
func (tc *toolchain) cleanup() {
	if err := os.RemoveAll(tc.workDir); err != nil {
		report.ReportWarning("failed to clean up temporary directory: %s", err)
	}
}

// compileModule takes an LLVM module and an output path and attempts to
// compile it to an object file using LLC.  It returns an error if it fails.
func (tc *toolchain) compileModule(mod *llir.Module, objFilePath string) error {
	modFilePath := tc.tempPath(stem(objFilePath) + ".ll")
	if err := os.WriteFile(modFilePath, []byte(mod.String()), 0644); err != nil {
		return errors.Wrap(err, "failed to write LLVM module")
	}

	args := []string{"-filetype", "obj", "-o", objFilePath}
	if tc.profile.Release {
		args = append(args, "-O2")
	} else {
		args = append(args, "-O0")
	}

	if !tc.profile.Static {
		args = append(args, "-relocation-model", "pic")
	}

	args = append(args, modFilePath)

	llc := exec.Command(tc.profile.LLCPath, args...)
	stderrBuff := bytes.Buffer{}
	llc.Stderr = &stderrBuff

	if err := llc.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return errors.New(stderrBuff.String())
		}

		return err
	}

	return nil
}
