//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Engine builds and runs the testbed. CADENCE_CONFIG selects the TOML file.
func (Run) Engine() error {
	mg.Deps(Build.Engine)
	args := []string{}
	if path := os.Getenv("CADENCE_CONFIG"); path != "" {
		args = append(args, "-config", path)
	}
	fmt.Println("Run engine...")
	_, err := executeCmd("bin/cadence", withArgs(args...), withStream())
	return err
}
