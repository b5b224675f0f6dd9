package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"lowerc/codegen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profileFile = `
lowerc-version = "0.1.0"

[[profiles]]
name = "debug"
output-kind = "llvm"

[[profiles]]
name = "release"
default = true
release = true
static = true
strip = true
output-kind = "exe"
output = "bin/app"
lib-dirs = ["/opt/lib"]
link-libs = ["m", "pthread"]
linker = "clang"
llc = "/usr/bin/llc-15"
clang-args = ["-fuse-ld=lld"]
`

func writeProfile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lowerc.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultProfile(t *testing.T) {
	path := writeProfile(t, profileFile)

	prof, err := LoadProfile(path, "")
	require.NoError(t, err)

	assert.Equal(t, "release", prof.Name)
	assert.True(t, prof.Release)
	assert.True(t, prof.Static)
	assert.Equal(t, codegen.OutputExe, prof.OutputKind)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "bin/app"), prof.OutputPath)
	assert.Equal(t, []string{"m", "pthread"}, prof.LinkLibs)
	assert.Equal(t, "clang", prof.LinkerPath)
	assert.Equal(t, "/usr/bin/llc-15", prof.LLCPath)
	assert.Equal(t, []string{"-fuse-ld=lld"}, prof.ClangArgs)
}

func TestLoadSelectedProfile(t *testing.T) {
	path := writeProfile(t, profileFile)

	prof, err := LoadProfile(path, "debug")
	require.NoError(t, err)

	assert.Equal(t, codegen.OutputLLVM, prof.OutputKind)
	assert.False(t, prof.Release)
	assert.Empty(t, prof.OutputPath)

	// Unset tools keep their defaults.
	assert.Equal(t, "cc", prof.LinkerPath)
	assert.Equal(t, "llc", prof.LLCPath)

	_, err = LoadProfile(path, "profile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no profile named `profile`")
}

func TestFirstProfileWithoutDefault(t *testing.T) {
	path := writeProfile(t, `
lowerc-version = "0.1.0"

[[profiles]]
name = "a"

[[profiles]]
name = "b"
`)

	prof, err := LoadProfile(path, "")
	require.NoError(t, err)
	assert.Equal(t, "a", prof.Name)
}

func TestMissingProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lowerc.toml")

	prof, err := LoadProfile(path, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile(), prof)

	_, err = LoadProfile(path, "release")
	assert.Error(t, err)
}

func TestProfileErrors(t *testing.T) {
	cases := []struct {
		name, src, msg string
	}{
		{"missing version", "[[profiles]]\nname = \"a\"\n", "missing lowerc-version"},
		{"invalid version", "lowerc-version = \"zero\"\n", "invalid lowerc-version"},
		{"major version", "lowerc-version = \"2.0.0\"\n[[profiles]]\nname = \"a\"\n", "requires lowerc v2"},
		{"no profiles", "lowerc-version = \"0.1.0\"\n", "no profiles are defined"},
		{"unnamed", "lowerc-version = \"0.1.0\"\n[[profiles]]\nrelease = true\n", "must specify a name"},
		{"output kind", "lowerc-version = \"0.1.0\"\n[[profiles]]\nname = \"a\"\noutput-kind = \"wasm\"\n", "not a valid output kind"},
		{"test header", "lowerc-version = \"0.1.0\"\n[[profiles]]\nname = \"a\"\ntest = true\noutput-kind = \"header\"\n", "cannot produce only a header"},
		{"malformed", "lowerc-version = \n", "parsing profile file"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadProfile(writeProfile(t, c.src), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}

func TestProfileOptions(t *testing.T) {
	prof := DefaultProfile()
	prof.Test = true
	prof.CheckUnused = true

	opts := prof.Options("app")
	assert.Equal(t, codegen.Options{
		Test:        true,
		CheckUnused: true,
		OutName:     "app",
		OutKind:     codegen.OutputExe,
	}, opts)
}
