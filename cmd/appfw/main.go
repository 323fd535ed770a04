package main

import "go-appfw/cmd/appfw/cmd"

func main() {
	cmd.Execute()
}
