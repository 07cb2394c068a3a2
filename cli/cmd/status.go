package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Prashant-S29/wosh-keycore/fingerprint"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine, cache and registry health",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	storeErr, remoteErr := engine.Ping(cmd.Context())
	fp := fingerprint.Generate()

	remoteConfigured := viper.GetString("remote.s3.bucket") != ""

	type output struct {
		CachePath             string `json:"cache_path" yaml:"cache_path"`
		CacheHealthy          bool   `json:"cache_healthy" yaml:"cache_healthy"`
		CacheError            string `json:"cache_error,omitempty" yaml:"cache_error,omitempty"`
		RegistryConfigured    bool   `json:"registry_configured" yaml:"registry_configured"`
		RegistryHealthy       bool   `json:"registry_healthy" yaml:"registry_healthy"`
		RegistryError         string `json:"registry_error,omitempty" yaml:"registry_error,omitempty"`
		FingerprintConfidence string `json:"fingerprint_confidence" yaml:"fingerprint_confidence"`
		FingerprintDegraded   bool   `json:"fingerprint_degraded" yaml:"fingerprint_degraded"`
		MemoryProtectionLevel int    `json:"memory_protection_level" yaml:"memory_protection_level"`
	}

	out := output{
		CachePath:             cachePath,
		CacheHealthy:          storeErr == nil,
		RegistryConfigured:    remoteConfigured,
		RegistryHealthy:       remoteConfigured && remoteErr == nil,
		FingerprintConfidence: string(fp.Confidence),
		FingerprintDegraded:   fp.Degraded,
		MemoryProtectionLevel: int(engine.ProtectionLevel()),
	}
	if storeErr != nil {
		out.CacheError = storeErr.Error()
	}
	if remoteErr != nil {
		out.RegistryError = remoteErr.Error()
	}

	return printOutput(out, func() {
		fmt.Printf("Local cache:   %s\n", cachePath)
		if storeErr == nil {
			fmt.Println("Cache status:  healthy")
		} else {
			fmt.Printf("Cache status:  UNAVAILABLE (%v)\n", storeErr)
		}

		if !remoteConfigured {
			fmt.Println("Registry:      not configured (cache-only mode)")
		} else if remoteErr == nil {
			fmt.Println("Registry:      healthy")
		} else {
			fmt.Printf("Registry:      UNREACHABLE (%v)\n", remoteErr)
		}

		fmt.Printf("Fingerprint:   %s confidence", fp.Confidence)
		if fp.Degraded {
			fmt.Print(" (degraded)")
		}
		fmt.Println()
		fmt.Printf("Memory lock:   level %d\n", engine.ProtectionLevel())
	})
}
