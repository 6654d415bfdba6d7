package main

import "github.com/adamgarcia4/goLearning/gloomers/cmd"

func main() {
	cmd.Execute()
}
