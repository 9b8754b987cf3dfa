package storage

import (
	"strings"
	"time"
)

// Busy retry settings. SQLite already waits BusyTimeout inside the driver;
// these retries cover lock errors that surface anyway under WAL contention.
var (
	busyRetries = 5
	busyBackoff = 50 * time.Millisecond
)

// RetryOnBusy runs fn, retrying with linear backoff while it fails with a
// locked or busy database error.
func RetryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		err = fn()
		if err == nil || !IsBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * busyBackoff)
	}
	return err
}

// IsBusy reports whether err is a SQLite busy or locked error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}
