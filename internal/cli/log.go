// Package cli implements the linkage command-line interface.
//
// This package provides commands for solving and checking planar linkage
// projects, driving and sweeping them, searching design variables, and
// managing the result cache and saved runs. The CLI is built using cobra and
// logs through the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - solve, check, loads: Solve the constraints, report degrees of freedom
//     and over-constraint, compute quasi-static joint loads
//   - drive, jog, sweep: Move the drivers to given values, interactively or
//     through a range, with plots and saved runs
//   - optimize: Random search over design variables scored by sweep signals
//   - convert, params: Normalize legacy projects, list and set parameters
//   - runs, cache: Manage saved runs and the result cache
//   - serve: Run the HTTP API
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context so long operations can report progress
// with elapsed times.
//
// # Example
//
//	import "github.com/matzehuels/linkage/internal/cli"
//
//	func main() {
//	    if err := cli.Execute(ctx); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger with timestamp formatting.
// The logger writes to w and filters messages below level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with
// the elapsed duration. It is meant for sequential use by a single
// goroutine; concurrent calls to done race on the logger output.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as
// start. Call done once the operation completes.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since the tracker was created.
// The duration is rounded to the nearest millisecond.
// Example output: "Swept 73 frames (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// ctxKey is the type of the context keys of this package. A distinct type
// keeps them from colliding with keys of other packages.
type ctxKey int

// loggerKey stores the command logger.
const loggerKey ctxKey = 0

// withLogger returns a new context with l attached.
// Retrieve it with loggerFromContext.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger attached to ctx.
// Without one it returns log.Default(), so commands always have a usable
// logger even when the context was built elsewhere.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
