package main

import "github.com/aqasim81/schema-runner/internal/cli"

func main() {
	cli.Execute()
}
