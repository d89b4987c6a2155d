package main

import "github.com/bryanchriswhite/deskctl/cmd/deskctl/commands"

func main() {
	commands.Execute()
}
