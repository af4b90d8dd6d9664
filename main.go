package main

import "github.com/sajjad-MoBe/logkv/cmd"

func main() {
	cmd.Execute()
}
