package main

import "github.com/verisend/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
