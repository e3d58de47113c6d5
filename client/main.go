package main

import (
	"os"

	"github.com/netbirdio/peerctl/client/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
