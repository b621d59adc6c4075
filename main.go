package main

import "github.com/jkorpela/bookstand/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
