// Idiomatic entrypoint for the Cobra CLI; delegates to cmd.Execute.
package main

import (
	"github.com/fedres/fluidloom-sub000/cmd"
)

func main() {
	cmd.Execute()
}
