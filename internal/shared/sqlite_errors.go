// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// sqliteConflictMarkers are the substrings modernc.org/sqlite surfaces for
// the two concurrency failures worth retrying: SQLITE_BUSY from a writer
// holding the lock, and the driver's "database is locked" wording.
var sqliteConflictMarkers = []string{
	"SQLITE_BUSY",
	"database is locked",
}

// IsSQLiteConflictError reports whether err is a SQLite concurrency error
// that a short backoff-and-retry can resolve. Constraint violations and
// corruption errors are not conflicts and must not be retried.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range sqliteConflictMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
