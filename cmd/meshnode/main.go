// Command meshnode drives an in-process simulation of the portable mesh
// discovery and clusterhead-election engine across a configured set of
// nodes, for local testing and protocol development without real BLE
// radios.
package main

import "github.com/brightswarm/meshcore/cmd/meshnode/commands"

func main() {
	commands.Execute()
}
