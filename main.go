// The main package for the statuswatch executable.
package main

import (
	"github.com/JakeFAU/statuswatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
