// Package guard switches binaries into test mode when imported by a test.
// Importing it for side effects makes main() return before dialling
// Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

// TestModeEnv is read by app.InTestMode.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var once sync.Once

func init() {
	Enable()
}

// Enable sets test mode unless the caller already chose a value.
func Enable() {
	once.Do(func() {
		if os.Getenv(TestModeEnv) == "" {
			_ = os.Setenv(TestModeEnv, "1")
		}
	})
}
