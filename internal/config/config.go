package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/alevsk/driftwatch/internal/types"
)

const (
	DriftwatchConfigPathEnvVar = "DRIFTWATCH_CONFIG_PATH" // Environment variable for config path
)

// Config holds all configuration for the application. It is constructed once
// at process start and passed to every component; no component reads ambient
// environment state directly.
type Config struct {
	// Debug enables verbose logging and additional debug information
	Debug bool `mapstructure:"debug"`

	// Kubeconfig is the path to the kubeconfig file used for cluster access.
	// Empty means in-cluster configuration.
	Kubeconfig string `mapstructure:"kubeconfig"`

	// Namespaces to audit. Empty means all namespaces.
	Namespaces []string `mapstructure:"namespaces"`
	// ExcludeNamespaces are skipped during inventory enumeration.
	ExcludeNamespaces []string `mapstructure:"exclude_namespaces"`
	// ExcludeResourceTypes are ephemeral kinds whose lifecycle is not
	// managed declaratively.
	ExcludeResourceTypes []string `mapstructure:"exclude_resource_types"`
	// IgnoreFields are extra dotted paths stripped before spec hashing, on
	// top of the built-in runtime-field list.
	IgnoreFields []string `mapstructure:"ignore_fields"`

	// CodeScanPaths are source tree roots scanned for violations.
	CodeScanPaths []string `mapstructure:"code_scan_paths"`
	// CodeScanExclude are globs for paths never opened by the scanner.
	CodeScanExclude []string `mapstructure:"code_scan_exclude"`
	// OperatorPaths mark controller/operator code whose mutation calls are
	// exception-eligible rather than hard violations.
	OperatorPaths []string `mapstructure:"operator_paths"`
	// MutationSignatures are regexes matched against scanned file content.
	// Empty means the built-in kubectl mutation-verb set.
	MutationSignatures []string `mapstructure:"mutation_signatures"`
	// EmbeddedManifestWindow is the line window within which apiVersion and
	// kind keys together flag an embedded manifest.
	EmbeddedManifestWindow int `mapstructure:"embedded_manifest_window"`

	// AllowedExceptions downgrade matching findings to INFO until expiry.
	AllowedExceptions []types.ExceptionRule `mapstructure:"allowed_exceptions"`

	// MaxConcurrency bounds the inventory and scanner worker pools.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// InventoryTimeout bounds cluster enumeration; on expiry the run
	// continues with partial results.
	InventoryTimeout time.Duration `mapstructure:"inventory_timeout"`

	// Output selects the report rendering (json, yaml, table).
	Output string `mapstructure:"output"`

	// Server configuration
	Server struct {
		Host    string        `mapstructure:"host"`
		Port    int           `mapstructure:"port"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"server"`
}

// Load initializes and returns the configuration from all sources:
// 1. Command-line flags (highest priority)
// 2. Environment variables (prefixed with DRIFTWATCH_)
// 3. Configuration file (lowest priority)
func Load(configPath string) (*Config, error) {
	// Check for environment variable config path if not explicitly provided
	if configPath == "" {
		if envPath := os.Getenv(DriftwatchConfigPathEnvVar); envPath != "" {
			if _, err := os.Stat(envPath); os.IsNotExist(err) {
				return nil, fmt.Errorf("config file specified in %s not found: %s", DriftwatchConfigPathEnvVar, envPath)
			}
			configPath = envPath
		}
	} else {
		// Verify explicitly provided config file exists
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	}
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yml in the current directory
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Read environment variables
	v.SetEnvPrefix("DRIFTWATCH")
	v.AutomaticEnv()
	// Replace dots with underscores in env vars
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		} else if configPath != "" {
			// Only error if config file was explicitly specified
			return nil, fmt.Errorf("specified config file not found: %s", configPath)
		}
		// If no config file was specified, we'll use defaults
	}

	var config Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&config, decodeHook); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Inventory defaults
	v.SetDefault("exclude_namespaces", []string{"kube-system", "kube-public", "kube-node-lease"})
	v.SetDefault("exclude_resource_types", []string{"events", "endpointslices", "leases", "pods", "replicasets"})
	v.SetDefault("inventory_timeout", "2m")
	v.SetDefault("max_concurrency", 4)

	// Scanner defaults
	v.SetDefault("code_scan_exclude", []string{"**/vendor/**", "**/*_test.go", "**/testdata/**", "**/zz_generated*"})
	v.SetDefault("embedded_manifest_window", 20)

	// Output defaults
	v.SetDefault("output", "table")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout", "30s")
}
