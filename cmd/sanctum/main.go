package main

import "github.com/sanctumkit/sanctum/cmd/sanctum/cmd"

func main() {
	cmd.Execute()
}
