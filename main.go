package main

import "github.com/google/magic-github-proxy/cmd"

func main() {
	cmd.Execute()
}
