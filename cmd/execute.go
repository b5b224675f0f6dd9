package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"lowerc/codegen"
	"lowerc/common"
	"lowerc/report"

	"github.com/ComedicChimera/olive"
)

// Execute is the main entry point for the `lowerc` CLI utility.  It returns
// the exit status of the process.
func Execute() int {
	// set up the argument parser and all its extended commands and arguments
	cli := olive.NewCLI("lowerc", "lowerc lowers analyzed programs to native code", true)
	logLvlArg := cli.AddSelectorArg("loglevel", "ll", "the compiler log level", false, []string{"silent", "error", "warn", "verbose"})
	logLvlArg.SetDefaultValue("verbose")

	buildCmd := cli.AddSubcommand("build", "compile a program", true)
	buildCmd.AddPrimaryArg("program", "the path to the program description", true)
	buildCmd.AddStringArg("profile", "p", "the name of the profile to build", false)
	buildCmd.AddStringArg("config", "c", "the path to the profile file", false)

	headerCmd := cli.AddSubcommand("header", "emit the C header of a program", true)
	headerCmd.AddPrimaryArg("program", "the path to the program description", true)
	headerCmd.AddStringArg("output", "o", "the path to write the header to", false)

	cli.AddSubcommand("version", "print the lowerc version", false)

	// run the argument parser
	result, err := olive.ParseArgs(cli, os.Args)
	if err != nil {
		report.ReportFatal("%s", err)
	}

	if loglevel, ok := result.Arguments["loglevel"].(string); ok {
		report.InitReporterByName(loglevel)
	}

	// process the inputed command line
	subcmdName, subResult, _ := result.Subcommand()
	switch subcmdName {
	case "build":
		return execBuildCommand(subResult)
	case "header":
		return execHeaderCommand(subResult)
	case "version":
		report.DisplayInfoMessage("lowerc Version", common.LowercVersion)
	}

	return 0
}

// execBuildCommand executes the build subcommand.
func execBuildCommand(result *olive.ArgParseResult) int {
	progPath, _ := result.PrimaryArg()

	configPath := stringArg(result, "config")
	if configPath == "" {
		configPath = filepath.Join(filepath.Dir(progPath), common.ProfileFileName)
	}

	profile, err := LoadProfile(configPath, stringArg(result, "profile"))
	if err != nil {
		report.ReportFatal("%s", err)
	}

	return NewCompiler(progPath, profile).Run()
}

// execHeaderCommand executes the header subcommand.
func execHeaderCommand(result *olive.ArgParseResult) int {
	progPath, _ := result.PrimaryArg()

	profile := DefaultProfile()
	profile.OutputKind = codegen.OutputHeader
	profile.OutputPath = strings.TrimSuffix(stringArg(result, "output"), ".h")

	return NewCompiler(progPath, profile).Run()
}

// stringArg returns the value of the named string argument or the empty string
// if it was not given.
func stringArg(result *olive.ArgParseResult, name string) string {
	if arg, ok := result.Arguments[name]; ok {
		if s, ok := arg.(string); ok {
			return s
		}
	}

	return ""
}
