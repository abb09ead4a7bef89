// Command fove answers marginal queries over first-order network
// descriptions by lifted variable elimination.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
