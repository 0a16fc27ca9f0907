// Package config provides configuration management for the sfs CLI.
//
// Configuration is layered (lowest to highest precedence):
//   - built-in defaults from internal/constants
//   - the TOML file at ~/.sfs/config.toml (or --config)
//   - SFS_* environment variables (nested keys use "_", e.g. SFS_PROXY_MODE)
//   - command-line flags, applied by the CLI after Load
//
// Example file:
//
//	api_url = "https://api.simplefs.io"
//	token = "<access token>"
//	backend = "sfs"
//	concurrency = 8
//
//	[proxy]
//	mode = "basic"
//	host = "proxy.corp"
//	port = 3128
//
//	[storage]
//	type = "s3"
//	region = "eu-central-1"
//	container = "my-bucket"
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	encryption "github.com/fossMeDaddy/sfs-cli/internal/crypto"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/transfer"
)

// Backend names accepted in the "backend" key.
const (
	BackendSFS   = "sfs"
	BackendS3    = "s3"
	BackendAzure = "azure"
)

// Proxy modes accepted in the "proxy.mode" key.
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// Config represents the CLI configuration
type Config struct {
	// API settings
	APIURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`

	// Backend selects where blobs go: the sfs API or a storage account directly.
	Backend string `mapstructure:"backend"`

	// Transfer settings
	BlockSize          int   `mapstructure:"block_size"`
	MultipartThreshold int64 `mapstructure:"multipart_threshold"`
	Concurrency        int   `mapstructure:"concurrency"`
	AbortOnFailure     bool  `mapstructure:"abort_on_failure"`

	// KDF overrides the argon2id work factors for new encrypted uploads.
	KDF KDFConfig `mapstructure:"kdf"`

	LogLevel string `mapstructure:"log_level"`

	Proxy ProxyConfig `mapstructure:"proxy"`

	// Direct-to-storage settings, used when Backend is s3 or azure.
	Storage models.StorageInfo      `mapstructure:"storage"`
	S3      models.S3Credentials    `mapstructure:"s3"`
	Azure   models.AzureCredentials `mapstructure:"azure"`
}

// ProxyConfig holds outbound proxy settings shared by every backend.
type ProxyConfig struct {
	Mode     string `mapstructure:"mode"` // "no-proxy", "system", "basic", "ntlm"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"` // prefer SFS_PROXY_PASSWORD or the interactive prompt
	NoProxy  string `mapstructure:"no_proxy"` // comma-separated hosts/CIDRs that bypass the proxy
	Warmup   bool   `mapstructure:"warmup"`
}

// KDFConfig mirrors encryption.KDFParams with config-file friendly names.
type KDFConfig struct {
	Time      uint32 `mapstructure:"time"`
	MemoryKiB uint32 `mapstructure:"memory_kib"`
	Threads   uint8  `mapstructure:"threads"`
}

// Validation errors
var (
	ErrMissingAPIURL    = errors.New("api_url is required for the sfs backend")
	ErrMissingContainer = errors.New("storage.container is required for direct storage backends")
	ErrMissingRegion    = errors.New("storage.region or storage.endpoint is required for the s3 backend")
	ErrMissingAccount   = errors.New("storage.account_name or azure.connection_string is required for the azure backend")
	ErrMissingProxyHost = errors.New("proxy.host is required for basic and ntlm proxy modes")
)

// defaults lists every key with its default value. Registering each key is
// also what lets AutomaticEnv pick up SFS_* overrides during Unmarshal.
func defaults() map[string]any {
	return map[string]any{
		"api_url":             constants.DefaultAPIURL,
		"token":               "",
		"backend":             BackendSFS,
		"block_size":          constants.BlockSize,
		"multipart_threshold": constants.MultipartThreshold,
		"concurrency":         constants.DefaultConcurrency,
		"abort_on_failure":    false,
		"kdf.time":            0,
		"kdf.memory_kib":      0,
		"kdf.threads":         0,
		"log_level":           "info",

		"proxy.mode":     ProxyModeNone,
		"proxy.host":     "",
		"proxy.port":     0,
		"proxy.user":     "",
		"proxy.password": "",
		"proxy.no_proxy": "",
		"proxy.warmup":   false,

		"storage.type":         "",
		"storage.region":       "",
		"storage.endpoint":     "",
		"storage.container":    "",
		"storage.path_base":    "",
		"storage.account_name": "",
		"storage.path_style":   false,

		"s3.access_key":    "",
		"s3.secret_key":    "",
		"s3.session_token": "",

		"azure.sas_token":         "",
		"azure.connection_string": "",
	}
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetConfigType("toml")
	v.SetEnvPrefix("SFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path. An empty path means the default
// location; a missing default file is not an error, a missing explicit one is.
func Load(path string) (*Config, error) {
	v := New()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
			// defaults and environment only
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes an already-populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Proxy.Mode = strings.ToLower(strings.TrimSpace(c.Proxy.Mode))
	if c.Proxy.Mode == "" {
		c.Proxy.Mode = ProxyModeNone
	}
	// Ensure HTTPS scheme
	if c.APIURL != "" && !strings.HasPrefix(c.APIURL, "http") {
		c.APIURL = "https://" + c.APIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.Storage.StorageType == "" && c.Backend != BackendSFS {
		c.Storage.StorageType = c.Backend
	}
}

// Validate checks the configuration for the selected backend.
func (c *Config) Validate() error {
	switch c.Proxy.Mode {
	case ProxyModeNone, ProxyModeSystem:
	case ProxyModeBasic, ProxyModeNTLM:
		if c.Proxy.Host == "" {
			return ErrMissingProxyHost
		}
	default:
		return fmt.Errorf("unsupported proxy mode: %s", c.Proxy.Mode)
	}

	switch c.Backend {
	case BackendSFS:
		if c.APIURL == "" {
			return ErrMissingAPIURL
		}
	case BackendS3:
		if c.Storage.ConnectionSettings.Container == "" {
			return ErrMissingContainer
		}
		if c.Storage.ConnectionSettings.Region == "" && c.Storage.ConnectionSettings.Endpoint == "" {
			return ErrMissingRegion
		}
	case BackendAzure:
		if c.Storage.ConnectionSettings.Container == "" {
			return ErrMissingContainer
		}
		if c.Storage.ConnectionSettings.AccountName == "" && c.Azure.ConnectionString == "" {
			return ErrMissingAccount
		}
	default:
		return fmt.Errorf("unsupported backend: %q (want %s, %s or %s)", c.Backend, BackendSFS, BackendS3, BackendAzure)
	}

	opts := c.TransferOptions()
	return opts.Validate()
}

// TransferOptions converts the transfer settings into engine options.
// Password, Progress and Logger are left for the caller.
func (c *Config) TransferOptions() transfer.Options {
	return transfer.Options{
		BlockSize:          c.BlockSize,
		MultipartThreshold: c.MultipartThreshold,
		Concurrency:        c.Concurrency,
		AbortOnFailure:     c.AbortOnFailure,
		KDF: encryption.KDFParams{
			Time:      c.KDF.Time,
			MemoryKiB: c.KDF.MemoryKiB,
			Threads:   c.KDF.Threads,
		},
	}
}

// ProxyActive reports whether requests may leave through a proxy.
func (c *Config) ProxyActive() bool {
	switch c.Proxy.Mode {
	case ProxyModeNone, "":
		return false
	case ProxyModeSystem:
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return true
	}
}
