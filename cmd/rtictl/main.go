// rtictl is the inspection CLI companion to the lf-rti daemon.
package main

import "github.com/dantte-lp/lf-rti/cmd/rtictl/commands"

func main() {
	commands.Execute()
}
