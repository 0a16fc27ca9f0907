package cli

import (
	"context"
	"fmt"

	"github.com/fossMeDaddy/sfs-cli/internal/cloud/providers"
	"github.com/fossMeDaddy/sfs-cli/internal/config"
	"github.com/fossMeDaddy/sfs-cli/internal/transfer"
)

// newEngine loads configuration and creates a transfer engine for the
// configured backend. This is the standard way to get an engine in CLI
// commands; password may be empty.
func newEngine(ctx context.Context, password string) (*transfer.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := ensureProxyPassword(cfg); err != nil {
		return nil, nil, err
	}

	backend, err := providers.NewBackend(ctx, cfg, GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s backend: %w", cfg.Backend, err)
	}

	opts := cfg.TransferOptions()
	opts.Password = password
	opts.Logger = GetLogger()

	engine, err := transfer.NewEngine(backend, opts)
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}
