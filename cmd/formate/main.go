// Command formate validates, drafts, serves and runs conversational
// survey plans.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
