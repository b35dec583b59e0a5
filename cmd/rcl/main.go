// Command rcl is a terminal front end for the robot control link: serve
// and wait for the robot to dial in, dial out to it, or scan for
// Bluetooth SPP devices. Lines typed on stdin go to the robot; inbound
// lines are decoded and printed.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
