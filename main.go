package main

import "github.com/chriserin/ftr/cmd"

func main() {
	cmd.Execute()
}
