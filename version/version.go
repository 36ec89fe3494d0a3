package version

import (
	"fmt"
	"io"
	"runtime"
)

var (
	// Version is the semantic version (added at compile time)
	Version string = "0.1.0"

	Dirty  string
	Branch string
	// Revision is the git commit id (added at compile time)
	Revision  string
	Goversion string = runtime.Version()
)

func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "buildInfo Version=%v, Revision=%v, Gover=%v, Branch=%v, Dirty=%v\n", Version, Revision, Goversion, Branch, Dirty)
}
