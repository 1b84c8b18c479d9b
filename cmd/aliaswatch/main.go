package main

import "github.com/vietddude/aliaswatch/internal/cli"

func main() {
	cli.Execute()
}
