//go:build !debug

package debug

const Debug = false

func Print(format string, args ...interface{}) {
	// no-op unless built with the debug tag
}
