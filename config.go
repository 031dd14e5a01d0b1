package echoc

import (
	"io"

	"github.com/rs/zerolog"
)

// Config configures an Interpreter's ambient environment: where it reads
// and writes, and whether it fans log output to a structured zerolog sink
// in addition to its plain-text Logger (logger.go). Grounded on the
// teacher's own embeddable-interpreter config pattern (config.go), trimmed
// of the sandboxing/REPL-only options that have no EchoC analogue.
type Config struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	Verbose       bool
	StructuredLog *zerolog.Logger

	// EchoHome/EchoPath mirror the ECHOC_HOME/ECHOC_PATH environment
	// variables consulted by the module loader (spec.md §6); the CLI driver
	// (cmd/echoc) populates these from the environment, but embedders may
	// set them directly.
	EchoHome string
	EchoPath []string

	// Watch enables fsnotify-backed module cache invalidation (module.go
	// startWatching) so edited `load`-ed files are re-read on next use.
	Watch bool
}

// DefaultConfig returns a zero Config: its streams are nil, which
// NewInterpreter replaces with the process's standard streams, and
// structured logging is disabled.
func DefaultConfig() Config {
	return Config{}
}
