package shared

import "fmt"

// LedgerLockKey builds redis keys for ledger-wide critical sections.
func LedgerLockKey(name string) string {
	return fmt.Sprintf("ledger:%s:lock", name)
}
