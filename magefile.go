//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildReconstructor)
	mg.Deps(BuildMeasureSchedulers)
	fmt.Println("Compilation finished")
	return nil
}

func BuildReconstructor() error {
	fmt.Println("Building reconstructor executable...")
	return goCommand("build", "-o", "./bin/reconstructor", "./reconstructor")
}

func BuildMeasureSchedulers() error {
	fmt.Println("Building measureSchedulers executable...")
	return goCommand("build", "-o", "./bin/measureSchedulers", "./measureSchedulers")
}

// Test runs the unit tests with the race detector.
func Test() error {
	fmt.Println("Running tests...")
	return goCommand("test", "-race", "./...")
}

func goCommand(args ...string) error {
	cmd := exec.Command("go", args...)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
