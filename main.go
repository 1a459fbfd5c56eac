package main

import "github.com/brensch/gdelthelper/cmd"

func main() {
	cmd.Execute()
}
