package main

import "github.com/bryanchriswhite/blockcast/cmd/blockcast/commands"

func main() {
	commands.Execute()
}
