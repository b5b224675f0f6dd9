package report

import (
	"fmt"
	"os"
)

// InternalError is an internal compiler error: a violation of an invariant the
// backend relies upon, which indicates a bug upstream or in the backend itself.
type InternalError struct {
	Message string
}

func (ie *InternalError) Error() string {
	return "internal compiler error: " + ie.Message
}

// ICE raises an internal compiler error.  The error propagates as a panic and
// is displayed by CatchErrors.
func ICE(msg string, args ...interface{}) {
	panic(&InternalError{Message: fmt.Sprintf(msg, args...)})
}

// -----------------------------------------------------------------------------

// ReportICE reports an internal compiler error.  These are errors that
// specifically result for a bug or unexpected condition occurring with the
// compiler: they are not intended to ever happen.  These errors are always
// displayed regardless of log level.
func ReportICE(message string, args ...interface{}) {
	rep.m.Lock()
	defer rep.m.Unlock()

	displayICE(fmt.Sprintf(message, args...))

	os.Exit(-1)
}

// ReportFatal reports a fatal error.  These are errors that should cause all
// compilation to stop immediately.  However, they are expected errors that
// generally result from invalid configuration of some form: a missing input
// file, a malformed build profile, an output which can't be written, etc.
func ReportFatal(message string, args ...interface{}) {
	if rep.logLevel > LogLevelSilent {
		rep.m.Lock()
		defer rep.m.Unlock()

		rep.errorCount++
		displayEndPhase(false)
		displayFatal(fmt.Sprintf(message, args...))
	}

	os.Exit(1)
}

// ReportWarning reports a non-fatal warning.
func ReportWarning(message string, args ...interface{}) {
	if rep.logLevel >= LogLevelWarn {
		rep.m.Lock()
		defer rep.m.Unlock()

		rep.warningCount++
		displayWarning(fmt.Sprintf(message, args...))
	}
}

// AnyErrors returns whether or not any errors were reported.
func AnyErrors() bool {
	return rep.errorCount > 0
}

// -----------------------------------------------------------------------------

// CatchErrors catches any errors thrown by a `panic` during a phase of
// compilation.  Internal compiler errors abort with the ICE exit status; any
// other panic is reported as fatal.
// NB: This function must ALWAYS be deferred.
func CatchErrors() {
	if x := recover(); x != nil {
		endPhase(false)

		if ierr, ok := x.(*InternalError); ok {
			ReportICE("%s", ierr.Message)
		} else if serr, ok := x.(error); ok {
			ReportFatal("%s", serr)
		} else {
			ReportFatal("%v", x)
		}
	}
}
