package main

import "github.com/dukaforge/tabula/internal/cli"

func main() {
	cli.Execute()
}
