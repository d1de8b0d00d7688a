// Entrypoint for the Cobra CLI; delegates to the root command in cmd/root.go.

package main

import (
	"github.com/xudanli/tripnaraht-sub005/cmd"
)

func main() {
	cmd.Execute()
}
