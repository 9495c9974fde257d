package main

import "github.com/relock/sentinel/cmd"

func main() {
	cmd.Execute()
}
