// Command inspectctl is the ops tool for the inspection backend.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
