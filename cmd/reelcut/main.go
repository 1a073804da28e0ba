package main

import "github.com/ovoronkov/reelcut/internal/cli"

func main() {
	cli.Main()
}
