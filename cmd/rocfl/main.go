package main

import (
	"fmt"
	"os"

	"emperror.dev/emperror"
	"github.com/ocfl-archive/rocfl/rocfl/cmd"
)

func main() {
	defer emperror.HandleRecover(emperror.ErrorHandlerFunc(func(err error) {
		fmt.Fprintln(os.Stderr, "panic:", err)
		os.Exit(cmd.ExitErrors)
	}))
	os.Exit(cmd.Execute())
}
