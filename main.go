// Command otelscrape turns a set of configured HTTP/JSON APIs into
// OTLP metrics and logs. See cli/root.go for the command surface.
package main

import (
	"fmt"
	"os"

	"eve.evalgo.org/otelscrape/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCodeFor(err))
	}
}
