package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	keycore "github.com/Prashant-S29/wosh-keycore"
)

var (
	projectID          string
	projectPIN         string
	projectFingerprint string
	projectExportPath  string
	projectShowKey     bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage project keys",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a wrapped key for a new project",
	Long: `Generates a fresh project key and wraps it under the organization's
agreement public key. Needs no passphrase or PIN: wrapping uses public
material only. The clear key is wiped immediately; holders of the
organization factors recover it with "project recover".`,
	RunE: runProjectCreate,
}

var projectRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover a project key using authentication factors",
	Long: `Runs the full recovery pipeline: resolves the organization record
and the wrapped project key (local cache first, then the registry), verifies
the factors, and unwraps the key. The key stays in locked memory; it is only
printed with an explicit --show.`,
	RunE: runProjectRecover,
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectID, "project", "", "project identifier (generated when omitted)")
	projectCreateCmd.Flags().StringVar(&projectExportPath, "export", "", "write the wrapped key payload to this file")

	projectRecoverCmd.Flags().StringVar(&projectID, "project", "", "project identifier")
	projectRecoverCmd.Flags().StringVar(&projectPIN, "pin", "", "PIN factor")
	projectRecoverCmd.Flags().StringVar(&projectFingerprint, "fingerprint", "", "override the device fingerprint")
	projectRecoverCmd.Flags().BoolVar(&projectShowKey, "show", false, "print the recovered key (base64) to stdout")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectRecoverCmd)
	rootCmd.AddCommand(projectCmd)
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	id, err := requireOrgID()
	if err != nil {
		return err
	}

	pid := projectID
	if pid == "" {
		pid = uuid.New().String()
	}

	wrapped, err := engine.CreateProject(cmd.Context(), id, pid)
	if err != nil {
		return explainRecoveryError(err)
	}

	if projectExportPath != "" {
		payload, merr := json.Marshal(wrapped)
		if merr != nil {
			return fmt.Errorf("failed to encode wrapped key: %w", merr)
		}
		if merr = writeExportFile(projectExportPath, payload); merr != nil {
			return merr
		}
	}

	type output struct {
		ProjectID string `json:"project_id" yaml:"project_id"`
		OrgID     string `json:"org_id" yaml:"org_id"`
		Algorithm string `json:"algorithm" yaml:"algorithm"`
		Version   int    `json:"version" yaml:"version"`
	}
	out := output{ProjectID: pid, OrgID: id, Algorithm: wrapped.Algorithm, Version: wrapped.Version}

	return printOutput(out, func() {
		fmt.Printf("Project key provisioned: %s\n", pid)
		fmt.Printf("Organization:            %s\n", id)
		fmt.Printf("Wrap algorithm:          %s (v%d)\n", wrapped.Algorithm, wrapped.Version)
		if projectExportPath != "" {
			fmt.Printf("Wrapped key payload:     %s\n", projectExportPath)
		}
	})
}

func runProjectRecover(cmd *cobra.Command, args []string) error {
	id, err := requireOrgID()
	if err != nil {
		return err
	}
	if projectID == "" {
		return fmt.Errorf("project ID is required: use --project")
	}

	record, err := engine.Organization(cmd.Context(), id)
	if err != nil {
		return explainRecoveryError(err)
	}

	factors, err := collectFactors(record.MKDF, projectFingerprint, projectPIN)
	if err != nil {
		return err
	}

	key, err := engine.RecoverProjectKey(cmd.Context(), keycore.RecoveryRequest{
		OrgID:     id,
		ProjectID: projectID,
		Factors:   factors,
	})
	if err != nil {
		return explainRecoveryError(err)
	}
	defer key.Destroy()

	if projectShowKey {
		fmt.Println(base64.StdEncoding.EncodeToString(key.Bytes()))
		return nil
	}

	fmt.Printf("Project key recovered for %s (use --show to print it)\n", projectID)
	return nil
}
