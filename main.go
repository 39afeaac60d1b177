package main

import "github.com/strangelove-ventures/xion-cctp-bridge/cmd"

func main() {
	cmd.Execute()
}
