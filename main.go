package main

import "Bt1QMedia/cmd"

func main() {
	cmd.Execute()
}
