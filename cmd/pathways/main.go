// Command pathways runs the Pathways for Parents account service and a
// terminal client for walking through the journey.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
