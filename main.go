package main

import "stocks-simulator/cmd"

func main() {
	cmd.Execute()
}
