// Command quire crawls a website, indexes it and answers questions about it.
package main

import (
	"os"

	"github.com/custodia-labs/quire/internal/adapters/driving/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
