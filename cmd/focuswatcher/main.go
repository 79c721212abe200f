package main

import "github.com/bryanchriswhite/FocusWatcher/cmd/focuswatcher/commands"

func main() {
	commands.Execute()
}
