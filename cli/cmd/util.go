package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	keycore "github.com/Prashant-S29/wosh-keycore"
	"github.com/Prashant-S29/wosh-keycore/fingerprint"
)

// printOutput renders v in the selected output format. Text rendering is
// the caller's job; this handles the structured formats.
func printOutput(v interface{}, textFallback func()) error {
	switch outputFormat {
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to render yaml: %w", err)
		}
		fmt.Print(string(data))
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render json: %w", err)
		}
		fmt.Println(string(data))
	default:
		textFallback()
	}
	return nil
}

// requirePassphrase resolves the passphrase factor from flag, config or
// environment. It is never echoed back or logged.
func requirePassphrase() (string, error) {
	p := viper.GetString("keycore.passphrase")
	if p == "" {
		p = os.Getenv("WOSHKEY_PASSPHRASE")
	}
	if p == "" {
		return "", fmt.Errorf("passphrase is required: use --passphrase or the WOSHKEY_PASSPHRASE environment variable")
	}
	return p, nil
}

// resolveFingerprint returns the explicit fingerprint when given, otherwise
// fingerprints the current device. Degraded fingerprints are warned about:
// keys created from them may not be recoverable after a reboot.
func resolveFingerprint(explicit string) string {
	if explicit != "" {
		return explicit
	}

	result := fingerprint.Generate()
	if result.Degraded {
		fmt.Fprintln(os.Stderr, "Warning: device fingerprint is degraded and may not be stable across restarts")
	}
	return result.Fingerprint
}

// collectFactors gathers the factor secrets for the given config.
func collectFactors(cfg keycore.MKDFConfig, explicitFingerprint, pin string) (keycore.FactorInput, error) {
	var factors keycore.FactorInput

	p, err := requirePassphrase()
	if err != nil {
		return factors, err
	}
	factors.Passphrase = p

	if cfg.Enabled(keycore.FactorDevice) {
		factors.DeviceFingerprint = resolveFingerprint(explicitFingerprint)
	}

	if cfg.Enabled(keycore.FactorPIN) {
		if pin == "" {
			pin = os.Getenv("WOSHKEY_PIN")
		}
		if pin == "" {
			return factors, fmt.Errorf("PIN is required: use --pin or the WOSHKEY_PIN environment variable")
		}
		factors.PIN = pin
	}

	return factors, nil
}

func requireOrgID() (string, error) {
	if orgID == "" {
		return "", fmt.Errorf("organization ID is required: use --org")
	}
	return orgID, nil
}

// writeExportFile writes registration payloads with owner-only permissions.
func writeExportFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
