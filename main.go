// The main package for the depopfeed executable.
package main

import (
	"github.com/JakeFAU/depop-feed/cmd"
)

func main() {
	cmd.Execute()
}
