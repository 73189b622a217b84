//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Engine compiles the testbed binary into bin/cadence.
func (Build) Engine() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/cadence", "."), withStream())
	return err
}

type Test mg.Namespace

// All runs every package test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
