//go:build windows

package mem

func lockMemoryPlatform() (ProtectionLevel, error) {
	// Windows working-set locking is handled per buffer by memguard;
	// process-wide locking is not attempted here.
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	return nil
}
