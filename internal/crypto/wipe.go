package crypto

import (
	"crypto/rand"
	"runtime"

	"github.com/awnumar/memguard"
)

// Wipe overwrites buf with random bytes and then zeros it.
//
// This is best effort: Go gives no guarantee that the runtime has not
// already copied the data elsewhere (stack growth, GC moves). Secrets that
// must survive longer than a single call should live in memguard enclaves,
// with Wipe reserved for short-lived intermediates.
func Wipe(buf []byte) {
	if len(buf) == 0 {
		return
	}

	// Random pass first so a partially observed buffer never exposes a
	// recognizable all-zero "wiped" pattern next to stale secret bytes.
	// A rand failure is tolerable here; the zeroing pass below still runs.
	_, _ = rand.Read(buf)

	memguard.WipeBytes(buf)

	runtime.KeepAlive(buf)
}
