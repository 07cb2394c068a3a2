package misc

const (
	// DefaultRecordVersion defines the current version of the wrapped key format
	DefaultRecordVersion = 1

	// DefaultIterations is the PBKDF2 iteration count for factor key derivation
	DefaultIterations = 100000

	// MinIterations is the lowest accepted explicit work factor
	MinIterations = 1000

	// SaltSize is the length of every per-factor salt in bytes
	SaltSize = 32

	// KeySize is the length of all derived and generated symmetric keys
	KeySize = 32

	// MinPassphraseLength is the minimum accepted passphrase factor length
	MinPassphraseLength = 12

	// PIN factor bounds (digits only)
	MinPINLength = 4
	MaxPINLength = 8

	// ArgonTime Cache sealing key derivation parameters
	ArgonTime    uint32 = 4
	ArgonMemory  uint32 = 128 * 1024
	ArgonThreads uint8  = 4
	ArgonKeyLen  uint32 = 32

	FilePermissions = 0600 // user read + write
)
