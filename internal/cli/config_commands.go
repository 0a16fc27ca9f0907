// Package cli provides configuration management commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fossMeDaddy/sfs-cli/internal/cloud/providers"
	"github.com/fossMeDaddy/sfs-cli/internal/config"
	"github.com/fossMeDaddy/sfs-cli/internal/constants"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sfs configuration",
		Long: `Configuration management commands for sfs.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Validate configuration and reach the backend
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for sfs.

The configuration will be saved to ~/.sfs/config.toml (or --config).

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			values, err := promptConfigValues(cmd.InOrStdin(), out)
			if err != nil {
				return err
			}
			if err := config.WriteFile(path, values); err != nil {
				return err
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "\nConfiguration saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// promptConfigValues asks for the settings a first configuration needs.
func promptConfigValues(in io.Reader, out io.Writer) (map[string]any, error) {
	reader := bufio.NewReader(in)
	ask := func(question, def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", question, def)
		} else {
			fmt.Fprintf(out, "%s: ", question)
		}
		input, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			return def, nil
		}
		return input, nil
	}

	fmt.Fprintln(out, "sfs Configuration Setup")
	fmt.Fprintln(out, "=======================")
	fmt.Fprintln(out)

	values := make(map[string]any)
	backend, err := ask("Backend (sfs, s3, azure)", config.BackendSFS)
	if err != nil {
		return nil, err
	}
	backend = strings.ToLower(backend)
	values["backend"] = backend

	switch backend {
	case config.BackendSFS:
		url, err := ask("API Base URL", constants.DefaultAPIURL)
		if err != nil {
			return nil, err
		}
		token, err := ask("Access token", "")
		if err != nil {
			return nil, err
		}
		values["api_url"] = url
		values["token"] = token
	case config.BackendS3:
		for _, q := range []struct{ key, question, def string }{
			{"storage.container", "Bucket", ""},
			{"storage.region", "Region", "us-east-1"},
			{"storage.endpoint", "Endpoint (empty for AWS)", ""},
			{"storage.path_base", "Key prefix", ""},
		} {
			v, err := ask(q.question, q.def)
			if err != nil {
				return nil, err
			}
			if v != "" {
				values[q.key] = v
			}
		}
		fmt.Fprintln(out, "Credentials are read from SFS_S3_ACCESS_KEY/SFS_S3_SECRET_KEY or the AWS default chain.")
	case config.BackendAzure:
		for _, q := range []struct{ key, question string }{
			{"storage.account_name", "Storage account"},
			{"storage.container", "Container"},
			{"storage.path_base", "Blob prefix"},
		} {
			v, err := ask(q.question, "")
			if err != nil {
				return nil, err
			}
			if v != "" {
				values[q.key] = v
			}
		}
		fmt.Fprintln(out, "Set SFS_AZURE_SAS_TOKEN or SFS_AZURE_CONNECTION_STRING for credentials.")
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}

	proxyMode, err := ask("Proxy mode (no-proxy, system, basic, ntlm)", config.ProxyModeNone)
	if err != nil {
		return nil, err
	}
	values["proxy.mode"] = proxyMode
	if proxyMode == config.ProxyModeBasic || proxyMode == config.ProxyModeNTLM {
		host, err := ask("Proxy host", "")
		if err != nil {
			return nil, err
		}
		user, err := ask("Proxy user", "")
		if err != nil {
			return nil, err
		}
		values["proxy.host"] = host
		values["proxy.user"] = user
	}
	return values, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.sfs/config.toml)
  2. Environment variables (SFS_*)
  3. Command-line flags (--api-url, --backend, --concurrency)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyFlagOverrides(cfg)
			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config, path string) {
	secret := func(s string) string {
		// Never display any portion of a secret
		if s == "" {
			return "<not set>"
		}
		return fmt.Sprintf("<set (%d chars)>", len(s))
	}

	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Backend: %s\n\n", cfg.Backend)

	switch cfg.Backend {
	case config.BackendS3, config.BackendAzure:
		cs := cfg.Storage.ConnectionSettings
		fmt.Fprintln(out, "Storage Settings:")
		fmt.Fprintf(out, "  Container:  %s\n", cs.Container)
		if cs.Region != "" {
			fmt.Fprintf(out, "  Region:     %s\n", cs.Region)
		}
		if cs.Endpoint != "" {
			fmt.Fprintf(out, "  Endpoint:   %s\n", cs.Endpoint)
		}
		if cs.AccountName != "" {
			fmt.Fprintf(out, "  Account:    %s\n", cs.AccountName)
		}
		if cs.PathBase != "" {
			fmt.Fprintf(out, "  Path Base:  %s\n", cs.PathBase)
		}
		if cfg.Backend == config.BackendS3 {
			fmt.Fprintf(out, "  Access Key: %s\n", secret(cfg.S3.AccessKeyID))
		} else {
			fmt.Fprintf(out, "  SAS Token:  %s\n", secret(cfg.Azure.SASToken))
		}
	default:
		fmt.Fprintln(out, "API Settings:")
		fmt.Fprintf(out, "  API Base URL: %s\n", cfg.APIURL)
		fmt.Fprintf(out, "  Token:        %s\n", secret(cfg.Token))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Transfer Settings:")
	fmt.Fprintf(out, "  Block Size:          %d\n", cfg.BlockSize)
	fmt.Fprintf(out, "  Multipart Threshold: %d\n", cfg.MultipartThreshold)
	fmt.Fprintf(out, "  Concurrency:         %d\n", cfg.Concurrency)
	fmt.Fprintf(out, "  Abort On Failure:    %t\n", cfg.AbortOnFailure)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy Settings:")
	fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.Proxy.Host)
		fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.Proxy.Port)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "  (file does not exist - using defaults)")
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test configuration",
		Long: `Validate the configuration and build a client for the selected backend.

Pass a storage ID to also fetch that blob's metadata, which exercises
credentials and network connectivity end to end.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintln(out, "✗ Configuration INVALID")
				return err
			}
			if err := ensureProxyPassword(cfg); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Configuration valid (backend: %s)\n", cfg.Backend)

			ctx, cancel := context.WithTimeout(GetContext(), 10*time.Second)
			defer cancel()

			backend, err := providers.NewBackend(ctx, cfg, GetLogger())
			if err != nil {
				fmt.Fprintln(out, "✗ Backend client FAILED")
				return err
			}
			fmt.Fprintln(out, "✓ Backend client created")

			if len(args) == 0 {
				return nil
			}
			file, err := backend.Metadata(ctx, args[0])
			if err != nil {
				GetLogger().Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				return fmt.Errorf("connection test failed: %w", err)
			}
			fmt.Fprintf(out, "✓ Connection SUCCESSFUL (%s, %d bytes)\n", file.Name, file.FileSize)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n\n", path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: sfs config init")
			}
			return nil
		},
	}
}
