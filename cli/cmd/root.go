package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	keycore "github.com/Prashant-S29/wosh-keycore"
	"github.com/Prashant-S29/wosh-keycore/audit"
	"github.com/Prashant-S29/wosh-keycore/persist"
	"github.com/Prashant-S29/wosh-keycore/remote"
)

var (
	cfgFile      string
	cachePath    string
	passphrase   string
	orgID        string
	outputFormat string

	engine      *keycore.Engine
	auditLogger audit.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "woshkey",
	Short: "Client-side key derivation and recovery for wosh organizations",
	Long: `woshkey derives organization keys from authentication factors
(passphrase, device fingerprint, optional PIN), provisions wrapped project
keys, and recovers project keys from the local cache or the remote key
registry. No key material ever leaves this machine in clear form.`,
	PersistentPreRunE: initializeEngine,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if engine != nil {
			return engine.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Accept underscore spellings for every flag.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.woshkey.yaml)")
	rootCmd.PersistentFlags().StringVarP(&cachePath, "cache-path", "p", "", "path to the local key cache")
	rootCmd.PersistentFlags().StringVar(&passphrase, "passphrase", "", "passphrase factor (or use WOSHKEY_PASSPHRASE env var)")
	rootCmd.PersistentFlags().StringVarP(&orgID, "org", "o", "", "organization identifier")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "f", "text", "output format (text, yaml, json)")
	rootCmd.PersistentFlags().String("seal-passphrase", "", "passphrase sealing the on-disk cache (empty disables sealing)")

	bindFlagOrPanic("keycore.cache_path", "cache-path")
	bindFlagOrPanic("keycore.passphrase", "passphrase")
	bindFlagOrPanic("keycore.org", "org")
	bindFlagOrPanic("keycore.seal_passphrase", "seal-passphrase")

	// Audit flags
	rootCmd.PersistentFlags().Bool("audit", false, "enable audit logging")
	rootCmd.PersistentFlags().String("audit-file", "", "audit log file path")

	bindFlagOrPanic("audit.enabled", "audit")
	bindFlagOrPanic("audit.options.file_path", "audit-file")

	// Remote registry (S3-compatible) flags
	rootCmd.PersistentFlags().String("s3-endpoint", "", "registry S3 endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "", "registry S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "registry S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "registry S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "registry S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "registry S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "use SSL for registry connections")

	bindFlagOrPanic("remote.s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("remote.s3.region", "s3-region")
	bindFlagOrPanic("remote.s3.bucket", "s3-bucket")
	bindFlagOrPanic("remote.s3.prefix", "s3-prefix")
	bindFlagOrPanic("remote.s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("remote.s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("remote.s3.use_ssl", "s3-use-ssl")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")

		viper.SetConfigType("yaml")
		viper.SetConfigName(".woshkey")
	}

	viper.SetEnvPrefix("WOSHKEY")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// No config file is fine, defaults and env vars apply
	}
}

func setDefaults() {
	viper.SetDefault("keycore.cache_path", defaultCachePath())
	viper.SetDefault("keycore.iterations", 0)

	viper.SetDefault("remote.s3.region", "us-east-1")
	viper.SetDefault("remote.s3.prefix", "keycore/")
	viper.SetDefault("remote.s3.use_ssl", true)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.options.file_path", "audit.log")
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".woshkey-cache"
	}
	return filepath.Join(home, ".woshkey", "cache")
}

func initializeEngine(cmd *cobra.Command, args []string) error {
	// Help, completion and fingerprint need no engine.
	switch cmd.Name() {
	case "help", "completion", "__complete", "fingerprint":
		return nil
	}

	cachePath = viper.GetString("keycore.cache_path")
	orgID = viper.GetString("keycore.org")

	if err := os.MkdirAll(cachePath, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	store, err := persist.NewFileSystemStore(cachePath, viper.GetString("keycore.seal_passphrase"))
	if err != nil {
		return fmt.Errorf("failed to open local cache: %w", err)
	}

	source, err := createRemoteSource()
	if err != nil {
		return err
	}

	auditLogger, err = createAuditLogger()
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	engine, err = keycore.New(keycore.Options{
		Iterations:       viper.GetInt("keycore.iterations"),
		EnableMemoryLock: true,
	}, store, source, auditLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize key engine: %w", err)
	}

	return nil
}

func createAuditLogger() (audit.Logger, error) {
	filePath := viper.GetString("audit.options.file_path")
	if filePath == "audit.log" {
		filePath = filepath.Join(cachePath, "audit.log")
	}

	return audit.NewLogger(&audit.Config{
		Enabled: viper.GetBool("audit.enabled"),
		OrgID:   orgID,
		Type:    audit.FileAuditType,
		Options: map[string]interface{}{
			"file_path": filePath,
		},
	})
}

// createRemoteSource builds the S3 registry source when configured. Without
// a bucket the engine runs cache-only.
func createRemoteSource() (remote.Source, error) {
	bucket := viper.GetString("remote.s3.bucket")
	if bucket == "" {
		return nil, nil
	}

	config := remote.S3Config{
		Endpoint:        viper.GetString("remote.s3.endpoint"),
		AccessKeyID:     viper.GetString("remote.s3.access_key_id"),
		SecretAccessKey: viper.GetString("remote.s3.secret_access_key"),
		Bucket:          bucket,
		KeyPrefix:       viper.GetString("remote.s3.prefix"),
		UseSSL:          viper.GetBool("remote.s3.use_ssl"),
		Region:          viper.GetString("remote.s3.region"),
	}

	if err := validateS3Config(config); err != nil {
		return nil, fmt.Errorf("invalid registry configuration: %w", err)
	}

	source, err := remote.NewS3Source(config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to key registry: %w", err)
	}
	return source, nil
}

func validateS3Config(config remote.S3Config) error {
	var missing []string

	if config.Endpoint == "" {
		missing = append(missing, "remote.s3.endpoint")
	}
	if config.Region == "" {
		missing = append(missing, "remote.s3.region")
	}

	hasAccessKey := config.AccessKeyID != ""
	hasSecretKey := config.SecretAccessKey != ""

	if hasAccessKey && !hasSecretKey {
		missing = append(missing, "remote.s3.secret_access_key")
	}
	if !hasAccessKey && hasSecretKey {
		missing = append(missing, "remote.s3.access_key_id")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}
