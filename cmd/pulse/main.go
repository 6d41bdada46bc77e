package main

import "go-pulse/cli"

func main() {
	cli.Execute()
}
