// Command alertbridge forwards OpenNMS-style alarm and node-inventory
// events to a Prometheus Alertmanager v2 HTTP endpoint.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
