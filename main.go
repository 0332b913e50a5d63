package main

import (
	"fmt"
	"os"

	cmd "github.com/plantvision/leaf-server/cmd/leaf"
)

func main() {
	if err := cmd.GetRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
