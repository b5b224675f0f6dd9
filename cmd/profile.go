package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"lowerc/codegen"
	"lowerc/common"
	"lowerc/report"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

// BuildProfile represents the configuration of a single build.
type BuildProfile struct {
	Name string

	Release     bool
	Test        bool
	Static      bool
	Strip       bool
	Verbose     bool
	CheckUnused bool

	// OutputKind should be one of the enumerated codegen output kinds.
	OutputKind codegen.OutputKind

	// OutputPath is the path of the build output without its extension.  It
	// defaults to the program name in the working directory.
	OutputPath string

	// EmitHeader requests a C header alongside the build output.
	EmitHeader bool

	LibDirs    []string
	LinkLibs   []string
	Frameworks []string

	DynamicLinker string
	LibcLibDir    string

	// The paths to the external tools.
	LinkerPath string
	LLCPath    string

	// ClangArgs are appended to the linker driver command.
	ClangArgs []string
}

// Options returns the code generation options of the profile for an output
// named outName.
func (bp *BuildProfile) Options(outName string) codegen.Options {
	return codegen.Options{
		Release:     bp.Release,
		Test:        bp.Test,
		Static:      bp.Static,
		Strip:       bp.Strip,
		Verbose:     bp.Verbose,
		CheckUnused: bp.CheckUnused,
		OutName:     outName,
		OutKind:     bp.OutputKind,
	}
}

// DefaultProfile returns the profile used when no profile file exists: an
// unoptimized executable with debug information.
func DefaultProfile() *BuildProfile {
	return &BuildProfile{
		Name:       "debug",
		OutputKind: codegen.OutputExe,
		LinkerPath: "cc",
		LLCPath:    "llc",
	}
}

// -----------------------------------------------------------------------------

// tomlProfileFile represents a profile file as it is encoded in TOML.
type tomlProfileFile struct {
	Version  string         `toml:"lowerc-version"`
	Profiles []*tomlProfile `toml:"profiles"`
}

// tomlProfile represents a profile as it is encoded in TOML.
type tomlProfile struct {
	Name    string `toml:"name"`
	Default bool   `toml:"default"`

	Release     bool `toml:"release"`
	Test        bool `toml:"test"`
	Static      bool `toml:"static"`
	Strip       bool `toml:"strip"`
	Verbose     bool `toml:"verbose"`
	CheckUnused bool `toml:"check-unused"`

	OutputKind string `toml:"output-kind"`
	Output     string `toml:"output"`
	EmitHeader bool   `toml:"emit-header"`

	LibDirs    []string `toml:"lib-dirs,omitempty"`
	LinkLibs   []string `toml:"link-libs,omitempty"`
	Frameworks []string `toml:"frameworks,omitempty"`

	DynamicLinker string `toml:"dynamic-linker"`
	LibcLibDir    string `toml:"libc-lib-dir"`

	Linker string `toml:"linker"`
	LLC    string `toml:"llc"`

	ClangArgs []string `toml:"clang-args,omitempty"`
}

// outputKinds maps TOML output kind names to codegen output kinds.
var outputKinds = map[string]codegen.OutputKind{
	"llvm":   codegen.OutputLLVM,
	"obj":    codegen.OutputObj,
	"exe":    codegen.OutputExe,
	"lib":    codegen.OutputLib,
	"header": codegen.OutputHeader,
}

// LoadProfile loads the profile named selected from the profile file at path.
// If selected is empty, the default profile of the file is used.  A missing
// profile file is only an error if a profile was selected: otherwise the
// built-in default profile is returned.
func LoadProfile(path, selected string) (*BuildProfile, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && selected == "" {
			return DefaultProfile(), nil
		}

		return nil, errors.Wrap(err, "reading profile file")
	}

	tpf := &tomlProfileFile{}
	if err := toml.Unmarshal(buff, tpf); err != nil {
		return nil, errors.Wrapf(err, "parsing profile file `%s`", path)
	}

	if err := checkVersion(tpf.Version); err != nil {
		return nil, errors.Wrapf(err, "in profile file `%s`", path)
	}

	tprof, err := selectProfile(tpf.Profiles, selected)
	if err != nil {
		return nil, errors.Wrapf(err, "in profile file `%s`", path)
	}

	prof, err := convertProfile(tprof)
	if err != nil {
		return nil, errors.Wrapf(err, "in profile `%s`", tprof.Name)
	}

	// Relative output paths are relative to the profile file.
	if prof.OutputPath != "" && !filepath.IsAbs(prof.OutputPath) {
		prof.OutputPath = filepath.Join(filepath.Dir(path), prof.OutputPath)
	}

	return prof, nil
}

// checkVersion checks that a profile file written for the lowerc version
// version can be used by this compiler: the versions must share the same major
// version.
func checkVersion(version string) error {
	if version == "" {
		return errors.New("missing lowerc-version")
	}

	want := "v" + strings.TrimPrefix(version, "v")
	if !semver.IsValid(want) {
		return errors.Errorf("invalid lowerc-version `%s`", version)
	}

	have := "v" + common.LowercVersion
	if semver.Major(want) != semver.Major(have) {
		return errors.Errorf("profile file requires lowerc %s, but this is lowerc %s", semver.Major(want), have)
	}

	if semver.Compare(want, have) > 0 {
		report.ReportWarning("profile file was written for lowerc %s, a newer version than %s", want, have)
	}

	return nil
}

// selectProfile selects the profile named selected if it is non-empty.
// Otherwise, it selects the default profile or, if none is marked as default,
// the first profile.
func selectProfile(profiles []*tomlProfile, selected string) (*tomlProfile, error) {
	if len(profiles) == 0 {
		return nil, errors.New("no profiles are defined")
	}

	if selected != "" {
		for _, prof := range profiles {
			if prof.Name == selected {
				return prof, nil
			}
		}

		return nil, errors.Errorf("no profile named `%s`", selected)
	}

	for _, prof := range profiles {
		if prof.Default {
			return prof, nil
		}
	}

	return profiles[0], nil
}

// convertProfile converts a TOML build profile into a `*BuildProfile`.
func convertProfile(tprof *tomlProfile) (*BuildProfile, error) {
	if tprof.Name == "" {
		return nil, errors.New("profile must specify a name")
	}

	prof := DefaultProfile()
	prof.Name = tprof.Name

	if tprof.OutputKind != "" {
		kind, ok := outputKinds[tprof.OutputKind]
		if !ok {
			return nil, errors.Errorf("`%s` is not a valid output kind", tprof.OutputKind)
		}

		prof.OutputKind = kind
	}

	if tprof.Test && prof.OutputKind == codegen.OutputHeader {
		return nil, errors.New("test builds cannot produce only a header")
	}

	prof.Release = tprof.Release
	prof.Test = tprof.Test
	prof.Static = tprof.Static
	prof.Strip = tprof.Strip
	prof.Verbose = tprof.Verbose
	prof.CheckUnused = tprof.CheckUnused

	prof.OutputPath = tprof.Output
	prof.EmitHeader = tprof.EmitHeader

	prof.LibDirs = tprof.LibDirs
	prof.LinkLibs = tprof.LinkLibs
	prof.Frameworks = tprof.Frameworks
	prof.DynamicLinker = tprof.DynamicLinker
	prof.LibcLibDir = tprof.LibcLibDir
	prof.ClangArgs = tprof.ClangArgs

	if tprof.Linker != "" {
		prof.LinkerPath = tprof.Linker
	}

	if tprof.LLC != "" {
		prof.LLCPath = tprof.LLC
	}

	return prof, nil
}
