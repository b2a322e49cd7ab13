// main.go
//
// Minimal entry point that delegates CLI handling to the Cobra root command in cmd/root.go

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/iti/vortex/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			logrus.Fatalf("vortex: %v", r)
		}
	}()
	cmd.Execute()
}
