// Package providers creates the transfer backend selected by configuration.
package providers

import (
	"context"
	"fmt"

	"github.com/fossMeDaddy/sfs-cli/internal/api"
	"github.com/fossMeDaddy/sfs-cli/internal/cloud/azure"
	"github.com/fossMeDaddy/sfs-cli/internal/cloud/s3"
	"github.com/fossMeDaddy/sfs-cli/internal/config"
	"github.com/fossMeDaddy/sfs-cli/internal/http"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/transfer"
)

// NewBackend creates the backend for cfg.Backend: the SimpleFS API, an S3
// bucket or an Azure container. Storage backends share one optimized HTTP
// client carrying the proxy settings.
func NewBackend(ctx context.Context, cfg *config.Config, logger *logging.Logger) (transfer.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Backend == config.BackendSFS || cfg.Backend == "" {
		c, err := api.NewClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	if cfg.Backend != config.BackendS3 && cfg.Backend != config.BackendAzure {
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}

	httpClient, err := http.CreateOptimizedClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	if cfg.Backend == config.BackendS3 {
		c, err := s3.NewClient(ctx, cfg.Storage, cfg.S3, httpClient, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := azure.NewClient(cfg.Storage, cfg.Azure, httpClient, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}
