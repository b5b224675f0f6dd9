package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkArgs(t *testing.T) {
	prof := DefaultProfile()
	prof.LibDirs = []string{"/opt/lib"}
	prof.LinkLibs = []string{"m", "c"}
	prof.DynamicLinker = "/lib64/ld-linux-x86-64.so.2"
	prof.LibcLibDir = "/usr/lib/musl"
	prof.ClangArgs = []string{"-v"}

	args := linkArgs(prof, []string{"a.o", "b.o"}, "app", false)
	assert.Equal(t, []string{
		"-o", "app", "a.o", "b.o",
		"-L/usr/lib/musl", "-L/opt/lib",
		"-lm", "-lc",
		"-Wl,-dynamic-linker,/lib64/ld-linux-x86-64.so.2",
		"-v",
	}, args)
}

func TestLinkArgsStaticAndShared(t *testing.T) {
	prof := DefaultProfile()
	prof.Static = true
	prof.Strip = true
	prof.DynamicLinker = "/lib/ld.so"
	prof.Frameworks = []string{"Cocoa"}

	args := linkArgs(prof, []string{"a.o"}, "app", false)
	assert.Equal(t, []string{"-o", "app", "a.o", "-framework", "Cocoa", "-static", "-s"}, args)

	prof.Static = false
	prof.Strip = false
	args = linkArgs(prof, []string{"a.o"}, "libapp.so", true)
	assert.Equal(t, []string{"-o", "libapp.so", "a.o", "-framework", "Cocoa", "-Wl,-dynamic-linker,/lib/ld.so", "-shared"}, args)
}

func TestLibcLibDirNotRepeated(t *testing.T) {
	prof := DefaultProfile()
	prof.LibDirs = []string{"/usr/lib/musl"}
	prof.LibcLibDir = "/usr/lib/musl"

	args := linkArgs(prof, nil, "app", false)
	assert.Equal(t, []string{"-o", "app", "-L/usr/lib/musl"}, args)
}
