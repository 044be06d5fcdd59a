// relatio - Build RDF knowledge graphs from extracted narratives.
//
// relatio turns (subject, predicate, object) rows extracted from text into
// a deduplicated, linked RDF graph with optional external enrichment.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/relatio-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
