package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"secret-reflector/internal/models"
	"secret-reflector/pkg/log"
)

type VaultKVClient struct {
	client *vaultapi.Client
	mount  string
	logger zerolog.Logger
}

func NewVaultKVClient(descriptor *models.StoreDescriptor) (*VaultKVClient, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = descriptor.Address

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client for store %s: %w", descriptor.Name, err)
	}
	client.SetToken(descriptor.Token)

	return &VaultKVClient{
		client: client,
		mount:  descriptor.Mount,
		logger: log.Logger.With().
			Str("component", "vaultkv_backend").
			Str("store", descriptor.Name).
			Str("vault_address", descriptor.Address).
			Str("mount", descriptor.Mount).
			Logger(),
	}, nil
}

func (c *VaultKVClient) Kind() string {
	return models.StoreKindVaultKV.String()
}

func (c *VaultKVClient) Fetch(ctx context.Context, remoteKey string) (map[string]string, error) {
	logger := c.logger.With().Str("event", "fetch").Str("remote_key", remoteKey).Logger()

	secret, err := c.client.KVv2(c.mount).Get(ctx, remoteKey)
	if err != nil {
		classified := classifyVaultError(err)
		logger.Error().Err(err).Msg("Failed to read secret")
		return nil, fmt.Errorf("%w: read %s/%s: %v", classified, c.mount, remoteKey, err)
	}

	bundle := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		switch value := v.(type) {
		case string:
			bundle[k] = value
		default:
			bundle[k] = fmt.Sprintf("%v", value)
		}
	}

	logger.Debug().Int("property_count", len(bundle)).Msg("Fetched secret bundle")
	return bundle, nil
}

// Probe checks the cluster health endpoint, which does not require a token.
func (c *VaultKVClient) Probe(ctx context.Context) error {
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		classified := classifyVaultError(err)
		c.logger.Warn().Str("event", "probe").Err(err).Msg("Store probe failed")
		return fmt.Errorf("%w: probe: %v", classified, err)
	}
	if health.Sealed {
		return fmt.Errorf("%w: vault is sealed", ErrUnavailable)
	}
	if !health.Initialized {
		return fmt.Errorf("%w: vault is not initialized", ErrUnavailable)
	}
	return nil
}

func classifyVaultError(err error) error {
	if errors.Is(err, vaultapi.ErrSecretNotFound) {
		return ErrNotFound
	}

	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case respErr.StatusCode == http.StatusForbidden || respErr.StatusCode == http.StatusUnauthorized:
			return ErrAuth
		case respErr.StatusCode == http.StatusTooManyRequests:
			return ErrThrottled
		case respErr.StatusCode >= http.StatusInternalServerError:
			return ErrUnavailable
		}
	}

	return ErrUnavailable
}
