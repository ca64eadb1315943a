package main

import (
	"fmt"
	"os"

	"presupuestos/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand(&cli.RootOptions{})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
