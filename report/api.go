package report

import (
	"fmt"
	"time"

	"github.com/kr/pretty"
)

// NOTE: All report functions below only display if the appropriate log level is
// set.  They fail silently otherwise.

// DisplayInfoMessage displays a tagged informational message regardless of the
// phase of compilation.
func DisplayInfoMessage(tag, msg string) {
	if rep.logLevel > LogLevelSilent {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayInfo(tag, msg)
	}
}

// ReportCompileHeader reports the pre-compilation header: information about
// the compiler's current configuration (version and target).
func ReportCompileHeader(version, target string) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayCompileHeader(version, target)
	}
}

// ReportBeginPhase reports the beginning of a compilation phase.  Any phase
// still in progress is ended successfully.
func ReportBeginPhase(phase string) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayEndPhase(true)
		displayBeginPhase(phase)
	}
}

// ReportEndPhase reports the end of the current compilation phase.
func ReportEndPhase() {
	endPhase(!AnyErrors())
}

func endPhase(success bool) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayEndPhase(success)
	}
}

// ReportVerbose displays a message only at the verbose log level.
func ReportVerbose(msg string, args ...interface{}) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		fmt.Fprintf(rep.out, msg+"\n", args...)
	}
}

// ReportVerboseValue pretty prints a labeled structured value at the verbose
// log level.
func ReportVerboseValue(label string, value interface{}) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayInfo(label, pretty.Sprintf("%# v", value))
	}
}

// ReportCompilationFinished reports the concluding message for compilation.
func ReportCompilationFinished(outputPath string) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayEndPhase(rep.errorCount == 0)
		displayCompilationFinished(rep.errorCount == 0, outputPath, time.Since(rep.startTime))
	}
}
