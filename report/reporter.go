// Package report is responsible for displaying diagnostics to the user: fatal
// configuration errors, internal compiler errors, warnings, and the verbose
// progress output of a build.
package report

import (
	"io"
	"os"
	"sync"
	"time"
)

// Reporter is responsible for reporting errors, warnings, and other kinds of
// messages to the user during program execution.  The reporter respects the set
// log level and is synchronized: its methods can be safely called from multiple
// goroutines.
type Reporter struct {
	// The mutex used to synchonize different error method calls.
	m *sync.Mutex

	// The selected log level of the reporter.  This must be one of the
	// enumerated log levels below.
	logLevel int

	// The number of errors and warnings reported.
	errorCount, warningCount int

	// The time the reporter was initialized at: used to time the build.
	startTime time.Time

	// The writer messages are displayed to.
	out io.Writer
}

// Enumeration of the different possible log levels.
const (
	LogLevelSilent  = iota // Displays no output.
	LogLevelError          // Displays only errors to the user.
	LogLevelWarn           // Displays only warnings and errors to the user.
	LogLevelVerbose        // Displays all compilation messages to the user (default).
)

// logLevelNames maps the names accepted on the command-line to log levels.
var logLevelNames = map[string]int{
	"silent":  LogLevelSilent,
	"error":   LogLevelError,
	"warn":    LogLevelWarn,
	"verbose": LogLevelVerbose,
}

// rep is the global reporter instance.
var rep = newReporter(LogLevelVerbose)

func newReporter(logLevel int) *Reporter {
	return &Reporter{
		m:         &sync.Mutex{},
		logLevel:  logLevel,
		startTime: time.Now(),
		out:       os.Stderr,
	}
}

// InitReporter initializes the global reporter to the given log level.
func InitReporter(logLevel int) {
	rep = newReporter(logLevel)
}

// InitReporterByName initializes the global reporter to the log level with the
// given name.  Unknown names default to verbose.
func InitReporterByName(name string) {
	if level, ok := logLevelNames[name]; ok {
		InitReporter(level)
	} else {
		InitReporter(LogLevelVerbose)
	}
}
