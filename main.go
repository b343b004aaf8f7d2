package main

import "github.com/samsaffron/claude-gateway/cmd"

func main() {
	cmd.Execute()
}
