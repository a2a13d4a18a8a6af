package main

import "github.com/rowforge/rowforge/cmd"

func main() {
	cmd.Execute()
}
