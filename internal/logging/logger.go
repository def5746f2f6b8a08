package logging

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logr's V().
const (
	DEFAULT = 0
	VERBOSE = 2
	DEBUG   = 4
	TRACE   = 5
)

// NewLogger builds a production zap logger writing JSON to stderr.
// verbosity is one of the constants above; V(n) lines with n greater
// than verbosity are discarded.
func NewLogger(verbosity int) logr.Logger {
	cfg := uberzap.NewProductionConfig()
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-1 * verbosity))
	cfg.Sampling = nil
	z, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		// The config above is static; a build failure means stderr is unusable.
		return logr.Discard()
	}
	return zapr.NewLogger(z)
}

// NewFileLogger is NewLogger writing to path instead of stderr. The TUI
// uses it because stderr belongs to the terminal renderer.
func NewFileLogger(path string, verbosity int) (logr.Logger, error) {
	cfg := uberzap.NewProductionConfig()
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-1 * verbosity))
	cfg.Sampling = nil
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger creates a development logger that prints everything.
func NewTestLogger() logr.Logger {
	z := uberzap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(uberzap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			uberzap.NewAtomicLevelAt(zapcore.Level(-1*TRACE)),
		),
		uberzap.AddCaller(),
	)
	return zapr.NewLogger(z)
}

// Fatal calls logger.Error followed by os.Exit(1).
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
