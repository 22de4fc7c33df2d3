package main

import "github.com/lumenhq/lumen/cmd/lumen/cmd"

func main() {
	cmd.Execute()
}
