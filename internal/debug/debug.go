package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (saved files, uploads, failures)
	LevelLive    = 2 // Live info (warm-up progress, frames received)
	LevelVerbose = 3 // Verbose (stream settings, paths, keys)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  atomic.Int32
	logger atomic.Pointer[zap.SugaredLogger]
	output io.Writer = os.Stdout
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (saved files, uploads, failures)
// 2 = live info (warm-up, frames)
// 3 = verbose (stream settings, derived paths and keys)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
	if debugLevel > LevelOff {
		logger.Store(newLogger(output))
	} else {
		logger.Store(nil)
	}
}

// SetOutput redirects debug output to w (e.g. stdout plus the web status stream).
func SetOutput(w io.Writer) {
	output = w
	if Level() > LevelOff {
		logger.Store(newLogger(w))
	}
}

func newLogger(w io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	encCfg.EncodeCaller = nil
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core).Named("DoorSnap").Sugar()
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// active returns the logger when the level allows minLevel output.
func active(minLevel int) *zap.SugaredLogger {
	if Level() < minLevel {
		return nil
	}
	return logger.Load()
}

// Sync flushes buffered output.
func Sync() {
	if l := logger.Load(); l != nil {
		_ = l.Sync()
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if l := active(LevelInfo); l != nil {
		l.Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if l := active(LevelInfo); l != nil {
		l.Info("═══════════════════════════════════════")
		l.Infof("  %s", title)
		l.Info("═══════════════════════════════════════")
	}
}

// Saved reports a written image by base name only (level 1).
func Saved(kind, path string) {
	if l := active(LevelInfo); l != nil {
		l.Infof("Saved %s image: %s", kind, filepath.Base(path))
	}
}

// Uploaded reports a successful upload (level 1).
func Uploaded(bucket, key string) {
	if l := active(LevelInfo); l != nil {
		l.Infow("Successfully uploaded the picture", "bucket", bucket, "key", key)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if l := active(LevelLive); l != nil {
		l.Infof("[LIVE] "+format, args...)
	}
}

// Warmup prints warm-up progress (level 2).
func Warmup(done, total int) {
	if l := active(LevelLive); l != nil {
		l.Infof("[LIVE] Warm-up frame %d/%d", done, total)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if l := active(LevelVerbose); l != nil {
		l.Debugf("[VERBOSE] "+format, args...)
	}
}

// Print prints a level 3 message (alias for Verbose).
func Print(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Printf is an alias for Print for compatibility.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if l := active(LevelVerbose); l != nil {
		l.Debugf("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if l := active(LevelVerbose); l != nil {
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		l.Debugf("  %s", name)
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if l := active(LevelVerbose); l != nil {
		l.Debugf("[VERBOSE] Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if l := active(LevelInfo); l != nil {
		l.Infof("  %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if l := active(LevelTrace); l != nil {
		l.Debugf("[TRACE] "+format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if l := active(LevelTrace); l != nil {
		l.Debugw("[GPIO] "+operation, "pin", pin, "value", value)
	}
}

// --- General functions ---

// Error prints a diagnostic (level 1+).
func Error(err error) {
	if l := active(LevelInfo); l != nil {
		l.Errorf("%v", err)
	}
}

// Errorf prints a formatted diagnostic (level 1+).
func Errorf(format string, args ...interface{}) {
	if l := active(LevelInfo); l != nil {
		l.Errorf(format, args...)
	}
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
