package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stackd/internal/plan"
	"stackd/internal/registry"
)

// Exit codes reported by the CLI.
const (
	exitRuntime = 1 // transport or runtime failure
	exitConfig  = 2 // stack file failed validation
	exitCycle   = 3 // dependency graph has a cycle
	exitPartial = 4 // startup failed and was rolled back
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stackd:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case registry.IsValidationError(err):
		return exitConfig
	case plan.IsCycleError(err):
		return exitCycle
	case plan.IsStartError(err):
		return exitPartial
	}
	return exitRuntime
}
