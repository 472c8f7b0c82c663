package main

import "github.com/marek/maildock/internal/cli"

func main() {
	cli.Execute()
}
