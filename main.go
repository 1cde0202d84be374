package main

import "github.com/rubenlee11/HamGNN/cmd"

func main() {
	cmd.Execute()
}
