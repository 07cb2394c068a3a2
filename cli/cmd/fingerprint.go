package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Prashant-S29/wosh-keycore/fingerprint"
)

var fingerprintVerbose bool

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Show the current device fingerprint",
	Long: `Computes the device fingerprint used as the device authentication
factor. The fingerprint is a hash over stable hardware and platform signals;
no raw signal values leave this machine unless --verbose is given.`,
	RunE: runFingerprint,
}

func init() {
	fingerprintCmd.Flags().BoolVarP(&fingerprintVerbose, "verbose", "v", false, "include the collected signals")
	rootCmd.AddCommand(fingerprintCmd)
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	result := fingerprint.Generate()

	type output struct {
		Fingerprint string               `json:"fingerprint" yaml:"fingerprint"`
		Confidence  string               `json:"confidence" yaml:"confidence"`
		Degraded    bool                 `json:"degraded" yaml:"degraded"`
		Signals     *fingerprint.Signals `json:"signals,omitempty" yaml:"signals,omitempty"`
	}

	out := output{
		Fingerprint: result.Fingerprint,
		Confidence:  string(result.Confidence),
		Degraded:    result.Degraded,
	}
	if fingerprintVerbose {
		out.Signals = &result.Info
	}

	return printOutput(out, func() {
		fmt.Printf("Fingerprint: %s\n", result.Fingerprint)
		fmt.Printf("Confidence:  %s\n", result.Confidence)
		if result.Degraded {
			fmt.Println("Degraded:    yes (fingerprint may not be stable across restarts)")
		}
		if fingerprintVerbose {
			fmt.Printf("Hostname:    %s\n", result.Info.Hostname)
			fmt.Printf("Platform:    %s\n", result.Info.Platform)
			fmt.Printf("Machine ID:  %s\n", result.Info.MachineID)
		}
	})
}
