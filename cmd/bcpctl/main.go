// Gobcpctl is the CLI client for the gobcp daemon's status endpoint.
package main

import "github.com/dantte-lp/gobcp/cmd/bcpctl/commands"

func main() {
	commands.Execute()
}
