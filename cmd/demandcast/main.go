package main

import "github.com/vietddude/demandcast/internal/cli"

func main() {
	cli.Execute()
}
