// Command toyctl is the operator CLI for the device side of the gateway: it
// manages gateway-target contexts (kubectl-style), simulates a device
// against a gateway using file-backed audio in place of a real microphone
// and speaker, and checks for firmware updates.
package main

import (
	"fmt"
	"os"

	"github.com/snugbit/toygateway/cmd/toyctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "toyctl:", err)
		os.Exit(1)
	}
}
