package main

import "wrtools/internal/cli"

func main() {
	cli.Execute()
}
