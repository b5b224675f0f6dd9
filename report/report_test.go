package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture replaces the global reporter with one at level writing to a buffer.
func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()

	old := rep
	t.Cleanup(func() { rep = old })

	InitReporterByName(level)
	buff := &bytes.Buffer{}
	rep.out = buff
	return buff
}

func TestICE(t *testing.T) {
	defer func() {
		ierr, ok := recover().(*InternalError)
		require.True(t, ok)
		assert.Equal(t, "bad opcode 7", ierr.Message)
		assert.Equal(t, "internal compiler error: bad opcode 7", ierr.Error())
	}()

	ICE("bad opcode %d", 7)
}

func TestWarnLevel(t *testing.T) {
	buff := capture(t, "warn")

	ReportVerbose("lowering %s", "main")
	ReportVerboseValue("Profile", struct{ Name string }{"debug"})
	ReportWarning("unused variable `%s`", "x")
	DisplayInfoMessage("Test", "No tests to run.")

	out := buff.String()
	assert.NotContains(t, out, "lowering main")
	assert.NotContains(t, out, "debug")
	assert.Contains(t, out, "unused variable `x`")
	assert.Contains(t, out, "No tests to run.")
}

func TestSilentLevel(t *testing.T) {
	buff := capture(t, "silent")

	ReportWarning("unused variable `%s`", "x")
	DisplayInfoMessage("Test", "No tests to run.")
	assert.Empty(t, buff.String())
}

func TestVerboseValue(t *testing.T) {
	buff := capture(t, "verbose")

	ReportVerboseValue("Profile", struct{ Name string }{"debug"})
	assert.Contains(t, buff.String(), `"debug"`)
}

func TestUnknownLevelIsVerbose(t *testing.T) {
	capture(t, "chatty")
	assert.Equal(t, LogLevelVerbose, rep.logLevel)
	assert.False(t, AnyErrors())
}
