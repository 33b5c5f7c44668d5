package app

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes cmd/odyssey and cmd/worker return before loading config,
// so packages that link them never dial Postgres or Redis.
const TestModeEnv = "LEDGER_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeRead sync.Once
)

func readTestMode() {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether TestModeEnv holds a true value.
func InTestMode() bool {
	testModeRead.Do(readTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv after environment changes.
func RefreshTestMode() {
	testModeRead.Do(func() {})
	readTestMode()
}

// SkipStartup logs and reports true when binary must not start because the
// process runs in test mode.
func SkipStartup(logger *slog.Logger, binary string) bool {
	if !InTestMode() {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("test mode, skipping startup", slog.String("binary", binary), slog.String("env", TestModeEnv))
	return true
}
