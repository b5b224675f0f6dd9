package common

// LowercVersion is the current compiler version as a string.
const LowercVersion string = "0.1.0"

// ProfileFileName is the name of build profile files.
const ProfileFileName string = "lowerc.toml"

// TestFnListSymbol is the exported symbol of the test table in test builds.
const TestFnListSymbol string = "test_fn_list"

// TempDirPrefix prefixes the names of the scratch directories used while
// invoking external tools.
const TempDirPrefix string = "lowerc-"
