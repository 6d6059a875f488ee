package main

import "github.com/chatdock/chatdock/cmd"

func main() {
	cmd.Execute()
}
