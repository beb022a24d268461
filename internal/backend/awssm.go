package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"secret-reflector/internal/models"
	"secret-reflector/pkg/log"
)

// SecretsManagerAPI is the subset of the AWS Secrets Manager client the
// backend needs. Narrow on purpose so tests can inject a mock.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

type AWSSecretsManagerClient struct {
	name   string
	client SecretsManagerAPI
	region string
	logger zerolog.Logger
}

type AWSOption func(*AWSSecretsManagerClient)

// WithSecretsManagerAPI injects a custom Secrets Manager client (for tests).
func WithSecretsManagerAPI(client SecretsManagerAPI) AWSOption {
	return func(c *AWSSecretsManagerClient) {
		c.client = client
	}
}

func NewAWSSecretsManagerClient(ctx context.Context, descriptor *models.StoreDescriptor, opts ...AWSOption) (*AWSSecretsManagerClient, error) {
	c := &AWSSecretsManagerClient{
		name:   descriptor.Name,
		region: descriptor.Region,
		logger: log.Logger.With().
			Str("component", "awssm_backend").
			Str("store", descriptor.Name).
			Str("region", descriptor.Region).
			Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		configOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(descriptor.Region),
		}
		if descriptor.AccessKeyID != "" && descriptor.SecretAccessKey != "" {
			configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(descriptor.AccessKeyID, descriptor.SecretAccessKey, ""),
			))
		}

		cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config for store %s: %w", descriptor.Name, err)
		}

		var clientOpts []func(*secretsmanager.Options)
		if descriptor.Endpoint != "" {
			endpoint := descriptor.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		c.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	}

	return c, nil
}

func (c *AWSSecretsManagerClient) Kind() string {
	return models.StoreKindAWSSecretsManager.String()
}

// Fetch reads the secret under remoteKey and decodes its payload into a
// property bundle. JSON object payloads expose each top-level field as a
// property; anything else is exposed under the implicit "value" property.
func (c *AWSSecretsManagerClient) Fetch(ctx context.Context, remoteKey string) (map[string]string, error) {
	logger := c.logger.With().Str("event", "fetch").Str("remote_key", remoteKey).Logger()

	out, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &remoteKey,
	})
	if err != nil {
		classified := classifyAWSError(err)
		logger.Error().Err(err).Msg("Failed to get secret value")
		return nil, fmt.Errorf("%w: get %s: %v", classified, remoteKey, err)
	}

	var payload string
	switch {
	case out.SecretString != nil:
		payload = *out.SecretString
	case out.SecretBinary != nil:
		payload = string(out.SecretBinary)
	default:
		logger.Error().Msg("Secret has no value")
		return nil, fmt.Errorf("%w: secret %s has no value", ErrNotFound, remoteKey)
	}

	bundle := decodeBundle(payload)
	logger.Debug().Int("property_count", len(bundle)).Msg("Fetched secret bundle")
	return bundle, nil
}

// Probe lists a single secret to verify credentials and reachability
// without pulling any secret material.
func (c *AWSSecretsManagerClient) Probe(ctx context.Context) error {
	maxResults := int32(1)
	_, err := c.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{
		MaxResults: &maxResults,
	})
	if err != nil {
		classified := classifyAWSError(err)
		c.logger.Warn().Str("event", "probe").Err(err).Msg("Store probe failed")
		return fmt.Errorf("%w: probe: %v", classified, err)
	}
	return nil
}

// decodeBundle turns the raw payload into a property map. Non-string JSON
// values keep their JSON encoding.
func decodeBundle(payload string) map[string]string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return map[string]string{"value": payload}
	}

	bundle := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			bundle[k] = s
		} else {
			bundle[k] = string(v)
		}
	}
	return bundle
}

func classifyAWSError(err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "LimitExceededException":
			return ErrThrottled
		case "AccessDeniedException", "UnrecognizedClientException",
			"InvalidSignatureException", "ExpiredTokenException", "UnauthorizedOperation":
			return ErrAuth
		case "InternalServiceError", "ServiceUnavailable":
			return ErrUnavailable
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return ErrUnavailable
		}
	}

	return ErrUnavailable
}
