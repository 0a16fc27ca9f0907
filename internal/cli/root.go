// Package cli provides the command-line interface for sfs.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fossMeDaddy/sfs-cli/internal/config"
	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/version"
)

var (
	// Global flags
	cfgFile     string
	apiBaseURL  string
	backendName string
	verbose     bool
	debug       bool

	// Transfer flags, zero means "use the config value"
	concurrency int
	blockSize   int

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sfs",
		Short: "SimpleFS command-line client",
		Long: `sfs ` + version.Version + ` - Built: ` + version.BuildTime + `
Upload and download files to SimpleFS, or directly to an S3 bucket or
Azure container, with optional client-side encryption.

Encryption:
  --encrypt seals every block with XChaCha20-Poly1305 under a key
  derived from your password (argon2id). The password is read from
  the PASSWORD environment variable or prompted for.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logger.SetLevel(zerolog.DebugLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default ~/.sfs/config.toml)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "SimpleFS API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Storage backend: sfs, s3 or azure (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, fmt.Sprintf("Parts transferred at once (1-%d, 0 = config)", constants.MaxConcurrency))
	rootCmd.PersistentFlags().IntVar(&blockSize, "block-size", 0, "Plaintext block size in bytes for new uploads (0 = config)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop so repeated Ctrl+C does not block the sender
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling transfers...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	// Clean up signal handler
	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newCatCmd())
	rootCmd.AddCommand(newStatCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		// Fallback to background context if called before Execute()
		return context.Background()
	}
	return rootContext
}

// loadConfig reads the configuration file and environment, then applies
// global flag overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.LogLevel != "" && !verbose && !debug {
		GetLogger().SetLevel(logging.ParseLevel(cfg.LogLevel, zerolog.InfoLevel))
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if apiBaseURL != "" {
		cfg.APIURL = apiBaseURL
	}
	if backendName != "" {
		cfg.Backend = backendName
		if cfg.Storage.StorageType == "" && backendName != config.BackendSFS {
			cfg.Storage.StorageType = backendName
		}
	}
	if concurrency != 0 {
		cfg.Concurrency = concurrency
	}
	if blockSize != 0 {
		cfg.BlockSize = blockSize
	}
}
