// Command ragctl chunks, indexes and queries local documents from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/kk32340/SampleMLCode/pkg/app"
)

func main() {
	if err := newRootCmd(&cli{newApp: app.New}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
