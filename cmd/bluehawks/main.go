package main

import "github.com/bluehawksai/bluehawks-cli/internal/cli"

func main() {
	cli.Execute()
}
