// Command oceanctl is the command line client for the oceanographic
// analysis service.
package main

import (
	"os"

	"github.com/jmgilman/oceanctl/internal/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
