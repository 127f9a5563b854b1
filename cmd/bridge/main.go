// Command bridge connects an OpenGate server to a local agent host: it
// watches for work addressed to one agent identity and either surfaces it in
// the agent's live session or spawns an isolated session to execute it.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
