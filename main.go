package main

import "github.com/hyeonlog/contact-hub/cmd"

func main() {
	cmd.Execute()
}
