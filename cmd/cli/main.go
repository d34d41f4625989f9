package main

import "tagserver/cmd/cli/command"

func main() {
	command.Execute()
}
