package keycore

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

// Options configures an Engine instance.
//
// Options carries operational configuration only. No key material, factor
// secrets or salts ever travel through it; those are supplied per call via
// FactorInput so they can be wiped as soon as each operation completes.
//
// The zero value is usable: iterations default to the standard work factor,
// logging defaults to a no-op logger, and memory locking stays off.
type Options struct {
	// Iterations is the PBKDF2 work factor applied to every factor
	// derivation. Zero selects the default. Lowering it below the default
	// weakens every key derived by this engine and is rejected; tests that
	// need a cheap work factor set it explicitly above the floor.
	Iterations int `json:"iterations,omitempty"`

	// EnableMemoryLock requests that the process memory be locked against
	// swapping. Best effort: depending on platform privileges the engine
	// may achieve only partial or no locking, which is logged and reported
	// through ProtectionLevel, never fatal. Sensitive buffers are held in
	// memguard enclaves regardless of this setting.
	EnableMemoryLock bool `json:"enable_memory_lock"`

	// Logger receives operational events: cache fill failures, degraded
	// fingerprints, recovery step transitions. Nil installs a no-op logger.
	// Secrets never appear in log output.
	Logger *zerolog.Logger `json:"-"`
}

// Validate checks the Options configuration.
func (o Options) Validate() error {
	if o.Iterations < 0 {
		return newError(KindInvalidInput, "validate_options",
			"iterations cannot be negative", nil)
	}
	if o.Iterations > 0 && o.Iterations < misc.MinIterations {
		return newError(KindInvalidInput, "validate_options",
			fmt.Sprintf("iterations below the minimum work factor %d", misc.MinIterations), nil)
	}
	return nil
}

// iterations returns the effective work factor.
func (o Options) iterations() int {
	if o.Iterations == 0 {
		return misc.DefaultIterations
	}
	return o.Iterations
}

// logger returns the effective operational logger.
func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}
