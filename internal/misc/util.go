package misc

import "strings"

// IsNotFoundError reports whether err looks like a missing-record condition
// from a storage backend (filesystem or object store).
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "does not exist") ||
		strings.Contains(errStr, "no such file") ||
		strings.Contains(errStr, "NoSuchKey")
}
