package cli

import (
	"context"
	"os"

	"github.com/matzehuels/linkage/pkg/buildinfo"
)

// SetVersion sets the version information displayed by --version and served
// by the HTTP API. It is typically called by the main package with values
// injected via ldflags at build time.
func SetVersion(v, c, d string) {
	buildinfo.Version = v
	buildinfo.Commit = c
	buildinfo.Date = d
}

// Execute runs the linkage CLI with logging to stderr.
//
// Example:
//
//	func main() {
//	    if err := cli.Execute(context.Background()); err != nil {
//	        os.Exit(1)
//	    }
//	}
func Execute(ctx context.Context) error {
	return New(os.Stderr, LogInfo).RootCommand().ExecuteContext(ctx)
}
