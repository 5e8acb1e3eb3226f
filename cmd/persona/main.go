// Command persona generates evidence-grounded user personas from qualitative
// research data using a local draft model and a budget-gated frontier model.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "persona: %v\n", err)
		os.Exit(1)
	}
}
