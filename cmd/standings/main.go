package main

import "github.com/tabellenwerk/standings/internal/cli"

func main() {
	cli.Execute()
}
