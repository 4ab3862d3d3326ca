package main

import "github.com/dlawson/cload/cmd"

func main() {
	cmd.Execute()
}
