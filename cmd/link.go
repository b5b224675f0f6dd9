package cmd

import (
	"os/exec"

	"lowerc/report"
	"lowerc/util"

	"github.com/pkg/errors"
)

// link links objFilePaths into outPath using the profile's linker.  If shared
// is true, a shared library is produced instead of an executable.
func (tc *toolchain) link(objFilePaths []string, outPath string, shared bool) error {
	args := linkArgs(tc.profile, objFilePaths, outPath, shared)
	report.ReportVerbose("%s %v", tc.profile.LinkerPath, args)

	linkCommand := exec.Command(tc.profile.LinkerPath, args...)

	out, err := linkCommand.CombinedOutput()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// We were able to find the linker, but there were link errors.
			return errors.Errorf("link error:\n%s", string(out))
		}

		// Probably couldn't find the linker.
		return errors.Wrap(err, "failed to run linker")
	}

	return nil
}

// linkArgs returns the arguments passed to the linker driver.
func linkArgs(profile *BuildProfile, objFilePaths []string, outPath string, shared bool) []string {
	args := []string{"-o", outPath}
	args = append(args, objFilePaths...)

	libDirs := profile.LibDirs
	if profile.LibcLibDir != "" {
		libDirs = append([]string{profile.LibcLibDir}, libDirs...)
	}

	args = append(args, util.Prefixed("-L", util.Dedup(libDirs))...)
	args = append(args, util.Prefixed("-l", profile.LinkLibs)...)

	for _, fw := range profile.Frameworks {
		args = append(args, "-framework", fw)
	}

	if profile.DynamicLinker != "" && !profile.Static {
		args = append(args, "-Wl,-dynamic-linker,"+profile.DynamicLinker)
	}

	switch {
	case shared:
		args = append(args, "-shared")
	case profile.Static:
		args = append(args, "-static")
	}

	if profile.Strip {
		args = append(args, "-s")
	}

	return append(args, profile.ClangArgs...)
}
