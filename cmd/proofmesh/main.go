// Package main provides the entry point for the ProofMesh edit engine.
package main

import (
	"fmt"
	"os"

	"github.com/CarmenSalvado/ProofMesh-sub001/cmd/proofmesh/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
