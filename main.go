// devlinkctl drives the device-node linker out of process.
//
// Commands:
//
//	add-node     - apply permissions and publish stable links for a device
//	remove-node  - retract a device's stable links and canonical devnum link
//	reconcile    - retract stable links an old device revision held but the new one does not
//	version      - print version information
package main

import (
	"fmt"
	"os"

	"devlinkd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "devlinkctl:", err)
		os.Exit(1)
	}
}
