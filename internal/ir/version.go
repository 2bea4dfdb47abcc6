package ir

// Version constants for the statement model and compiler.
const (
	// IRVersion is the statement model version. Part of every fingerprint.
	IRVersion = "1"

	// CompilerVersion is the pgquery compiler version.
	CompilerVersion = "0.1.0"
)
