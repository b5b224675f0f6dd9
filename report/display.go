package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

var (
	SuccessColorFG = pterm.FgLightGreen
	SuccessStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	WarnColorFG    = pterm.FgYellow
	WarnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG   = pterm.FgRed
	ErrorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	InfoColorFG    = SuccessColorFG
	InfoStyleBG    = SuccessStyleBG
)

// displayICE displays an internal compiler error message.
func displayICE(message string) {
	fmt.Fprint(rep.out, "\n", ErrorStyleBG.Sprint("internal compiler error:"), " ")
	fmt.Fprintln(rep.out, ErrorColorFG.Sprint(message))
	fmt.Fprintln(rep.out, InfoColorFG.Sprint("This error was not supposed to happen: it is a bug in the compiler."))
}

// displayFatal displays a fatal error message.
func displayFatal(message string) {
	fmt.Fprint(rep.out, "\n", ErrorStyleBG.Sprint("fatal error:"), " ")
	fmt.Fprintln(rep.out, ErrorColorFG.Sprint(message))
}

// displayWarning displays a warning message.
func displayWarning(message string) {
	fmt.Fprint(rep.out, WarnStyleBG.Sprint("warning:"), " ")
	fmt.Fprintln(rep.out, WarnColorFG.Sprint(message))
}

// displayInfo displays a tagged informational message.
func displayInfo(tag, msg string) {
	fmt.Fprint(rep.out, InfoStyleBG.Sprint(tag), " ")
	fmt.Fprintln(rep.out, InfoColorFG.Sprint(msg))
}

// -----------------------------------------------------------------------------

// displayCompileHeader displays the compiler information before starting
// compilation.
func displayCompileHeader(version, target string) {
	fmt.Fprint(rep.out, "lowerc ", InfoColorFG.Sprint("v"+version))
	fmt.Fprintln(rep.out, " -- target:", InfoColorFG.Sprint(target))
}

// phaseSpinner stores the current phase spinner
var phaseSpinner *pterm.SpinnerPrinter
var currentPhase string
var phaseStartTime time.Time

const maxPhaseLength = len("Emitting")

// displayBeginPhase displays the beginning of a compilation phase
func displayBeginPhase(phase string) {
	currentPhase = phase
	phaseText := phase + "..." + strings.Repeat(" ", maxPhaseLength-len(phase)+2)
	phaseSpinner = pterm.DefaultSpinner.WithStyle(pterm.NewStyle(InfoColorFG))

	phaseSpinner.SuccessPrinter = &pterm.PrefixPrinter{
		MessageStyle: pterm.NewStyle(pterm.FgDefault),
		Prefix: pterm.Prefix{
			Style: SuccessStyleBG,
			Text:  "Done",
		},
	}

	phaseSpinner.FailPrinter = &pterm.PrefixPrinter{
		MessageStyle: pterm.NewStyle(pterm.FgDefault),
		Prefix: pterm.Prefix{
			Style: ErrorStyleBG,
			Text:  "Fail",
		},
	}

	phaseSpinner, _ = phaseSpinner.Start(phaseText)
	phaseStartTime = time.Now()
}

// displayEndPhase displays the end of a compilation phase
func displayEndPhase(success bool) {
	if phaseSpinner != nil {
		if success {
			phaseSpinner.Success(
				currentPhase+strings.Repeat(" ", maxPhaseLength-len(currentPhase)+2),
				fmt.Sprintf("(%.3fs)", time.Since(phaseStartTime).Seconds()),
			)
		} else {
			phaseSpinner.Fail(currentPhase + strings.Repeat(" ", maxPhaseLength-len(currentPhase)+2))
		}

		phaseSpinner = nil
	}
}

// displayCompilationFinished displays a compilation finished message
func displayCompilationFinished(success bool, outputPath string, elapsed time.Duration) {
	fmt.Fprintln(rep.out)

	if success {
		fmt.Fprint(rep.out, SuccessColorFG.Sprint("All done! "))
	} else {
		fmt.Fprint(rep.out, ErrorColorFG.Sprint("Oh no! "))
	}

	fmt.Fprint(rep.out, "(")

	switch rep.errorCount {
	case 0:
		fmt.Fprint(rep.out, SuccessColorFG.Sprint(0), " errors, ")
	case 1:
		fmt.Fprint(rep.out, ErrorColorFG.Sprint(1), " error, ")
	default:
		fmt.Fprint(rep.out, ErrorColorFG.Sprint(rep.errorCount), " errors, ")
	}

	switch rep.warningCount {
	case 0:
		fmt.Fprint(rep.out, SuccessColorFG.Sprint(0), " warnings)")
	case 1:
		fmt.Fprint(rep.out, WarnColorFG.Sprint(1), " warning)")
	default:
		fmt.Fprint(rep.out, WarnColorFG.Sprint(rep.warningCount), " warnings)")
	}

	fmt.Fprintf(rep.out, " in %.3fs\n", elapsed.Seconds())

	if success && outputPath != "" {
		fmt.Fprintln(rep.out, "output written to", InfoColorFG.Sprint(outputPath))
	}
}
