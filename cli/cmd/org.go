package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	keycore "github.com/Prashant-S29/wosh-keycore"
)

var (
	orgWithPIN     bool
	orgPIN         string
	orgFingerprint string
	orgExportPath  string
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organization key material",
}

var orgCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create organization keys from authentication factors",
	Long: `Derives a new organization keypair from the passphrase and the
device fingerprint (plus a PIN with --with-pin), seals the private key under
the factor-derived storage key, and stores the record in the local cache.

The record contains no clear key material. Use --export to write the
registration payload for the wosh registry.`,
	RunE: runOrgCreate,
}

var orgRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Verify that the organization key can be recovered",
	Long: `Re-derives the organization private key from the supplied factors
and discards it immediately. Succeeds only when the factors and the device
match the registered record; use this to check access before it matters.`,
	RunE: runOrgRecover,
}

var orgVerifyDeviceCmd = &cobra.Command{
	Use:   "verify-device",
	Short: "Check that this device is registered for the organization",
	Long: `Proves device possession using only the fingerprint, without the
passphrase or PIN. Advisory: full recovery still verifies all factors.`,
	RunE: runOrgVerifyDevice,
}

func init() {
	orgCreateCmd.Flags().BoolVar(&orgWithPIN, "with-pin", false, "enable the PIN factor")
	orgCreateCmd.Flags().StringVar(&orgPIN, "pin", "", "PIN factor (4-8 digits, or use WOSHKEY_PIN env var)")
	orgCreateCmd.Flags().StringVar(&orgFingerprint, "fingerprint", "", "override the device fingerprint")
	orgCreateCmd.Flags().StringVar(&orgExportPath, "export", "", "write the registration payload to this file")

	orgRecoverCmd.Flags().StringVar(&orgPIN, "pin", "", "PIN factor")
	orgRecoverCmd.Flags().StringVar(&orgFingerprint, "fingerprint", "", "override the device fingerprint")

	orgVerifyDeviceCmd.Flags().StringVar(&orgFingerprint, "fingerprint", "", "override the device fingerprint")

	orgCmd.AddCommand(orgCreateCmd)
	orgCmd.AddCommand(orgRecoverCmd)
	orgCmd.AddCommand(orgVerifyDeviceCmd)
	rootCmd.AddCommand(orgCmd)
}

func runOrgCreate(cmd *cobra.Command, args []string) error {
	id := orgID
	if id == "" {
		id = uuid.New().String()
	}

	kinds := []keycore.FactorKind{keycore.FactorPassphrase, keycore.FactorDevice}
	if orgWithPIN {
		kinds = append(kinds, keycore.FactorPIN)
	}
	cfg, err := keycore.NewMKDFConfig(kinds...)
	if err != nil {
		return err
	}

	factors, err := collectFactors(cfg, orgFingerprint, orgPIN)
	if err != nil {
		return err
	}

	record, err := engine.CreateOrganization(cmd.Context(), id, factors, cfg)
	if err != nil {
		return err
	}

	if orgExportPath != "" {
		payload, eerr := keycore.EncodeOrgRecord(record)
		if eerr != nil {
			return eerr
		}
		if eerr = writeExportFile(orgExportPath, payload); eerr != nil {
			return eerr
		}
	}

	type output struct {
		OrgID              string `json:"org_id" yaml:"org_id"`
		PublicKey          string `json:"public_key" yaml:"public_key"`
		AgreementPublicKey string `json:"agreement_public_key" yaml:"agreement_public_key"`
		Factors            int    `json:"factors" yaml:"factors"`
	}
	out := output{
		OrgID:              record.OrgID,
		PublicKey:          record.PublicKey,
		AgreementPublicKey: record.AgreementPublicKey,
		Factors:            cfg.RequiredFactors,
	}

	return printOutput(out, func() {
		fmt.Printf("Organization created: %s\n", record.OrgID)
		fmt.Printf("Public key:           %s\n", record.PublicKey)
		fmt.Printf("Agreement key:        %s\n", record.AgreementPublicKey)
		fmt.Printf("Factors:              %d\n", cfg.RequiredFactors)
		if orgExportPath != "" {
			fmt.Printf("Registration payload: %s\n", orgExportPath)
		}
	})
}

func runOrgRecover(cmd *cobra.Command, args []string) error {
	id, err := requireOrgID()
	if err != nil {
		return err
	}

	record, err := engine.Organization(cmd.Context(), id)
	if err != nil {
		return err
	}

	factors, err := collectFactors(record.MKDF, orgFingerprint, orgPIN)
	if err != nil {
		return err
	}

	seed, err := keycore.RecoverOrganizationKey(factors, record)
	if err != nil {
		return explainRecoveryError(err)
	}
	seed.Destroy()

	fmt.Printf("Organization key recovered successfully for %s\n", id)
	return nil
}

func runOrgVerifyDevice(cmd *cobra.Command, args []string) error {
	id, err := requireOrgID()
	if err != nil {
		return err
	}

	record, err := engine.Organization(cmd.Context(), id)
	if err != nil {
		return err
	}

	fp := resolveFingerprint(orgFingerprint)
	if err = keycore.VerifyDevicePossession(fp, record); err != nil {
		return explainRecoveryError(err)
	}

	fmt.Printf("This device is registered for organization %s\n", id)
	return nil
}

// explainRecoveryError maps error kinds to actionable CLI messages.
func explainRecoveryError(err error) error {
	switch {
	case keycore.IsDeviceMismatch(err):
		return fmt.Errorf("this device is not registered for the organization; register it or recover from the original device: %w", err)
	case keycore.IsAuthenticationFailure(err):
		return fmt.Errorf("authentication failed: check the passphrase and PIN: %w", err)
	case keycore.IsStorageUnavailable(err):
		return fmt.Errorf("key material is unavailable: check the registry connection and try again: %w", err)
	default:
		return err
	}
}
