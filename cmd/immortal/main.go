package main

import "github.com/immortal-app/immortal/cmd/immortal/commands"

func main() {
	commands.Execute()
}
