// main.go - command-line entry point
//
// Grounded on the teacher's main() (package-level flag variables parsed
// once, a VerboseMode-style global gating stderr diagnostics), generalized
// from a compiler's many flags down to the loader's two.
package main

import (
	"flag"
	"fmt"
	"os"
)

// VerboseMode gates extra stderr diagnostics (segment table dump, load
// tracing). Never consulted on the fault-resolution path (see
// fault_resolver.go): that path must stay allocation- and I/O-free.
var VerboseMode bool

func main() {
	var lazy = flag.Bool("lazy", false, "use the lazy (\"smart\") demand-paging loader instead of the eager one")
	var smart = flag.Bool("smart", false, "alias for -lazy")
	var verbose = flag.Bool("v", false, "print segment table and load tracing to stderr")
	var verboseLong = flag.Bool("verbose", false, "alias for -v")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <ELF file>\n", os.Args[0])
	}
	flag.Parse()

	VerboseMode = *verbose || *verboseLong

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	result, err := run(flag.Arg(0), *lazy || *smart, VerboseMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}

	report(result)
	os.Exit(0)
}
