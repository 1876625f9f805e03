package main

import "content-history/cmd"

func main() {
	cmd.Execute()
}
