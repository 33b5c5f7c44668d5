// Package testing prepares the ledger environment for package tests. Import it
// for side effects: binaries stay in test mode, logs are JSON and events are
// delivered synchronously so assertions can follow a publish directly.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

// Defaults applied unless the environment already sets them.
var Defaults = map[string]string{
	"LEDGER_TEST_MODE": "true",
	"LOG_FORMAT":       "json",
	"EVENTS_ASYNC":     "false",
}

var once sync.Once

func apply() {
	once.Do(func() {
		for key, value := range Defaults {
			if _, set := os.LookupEnv(key); !set {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	apply()
}

// TestMain lets packages delegate their TestMain here.
func TestMain(m *stdtesting.M) {
	apply()
	os.Exit(m.Run())
}
