package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"secret-reflector/internal/models"
	"secret-reflector/internal/repository"
	"secret-reflector/pkg/db"
	"secret-reflector/pkg/log"
)

type TargetSecretRepository struct {
	psql           *db.PostgresDatastore
	circuitBreaker *gobreaker.CircuitBreaker
	retryOptFunc   func() []backoff.RetryOption
	logger         zerolog.Logger
}

func NewTargetSecretRepository(psql *db.PostgresDatastore) *TargetSecretRepository {
	return &TargetSecretRepository{
		psql:           psql,
		circuitBreaker: newQueryCircuitBreaker(),
		retryOptFunc:   newBackoffStrategy,
		logger:         log.Logger.With().Str("component", "target_secret_repository").Logger(),
	}
}

func (repo *TargetSecretRepository) GetTargetSecret(targetID string) (*models.TargetSecret, error) {
	if targetID == "" {
		return nil, repository.ErrInvalidQueryParameters
	}

	secret, err := executeWithResilience(repo, func() (*models.TargetSecret, error) {
		var secret models.TargetSecret
		query := `SELECT * FROM target_secrets WHERE target_id = $1`
		if err := repo.psql.DB.Get(&secret, query, targetID); err != nil {
			return nil, err
		}
		return &secret, nil
	})
	if err != nil {
		if !errors.Is(err, repository.ErrTargetSecretNotFound) {
			repo.decorateLog(log.Logger.Error, targetID).Err(err).Msg("Failed to get target secret")
		}
		return nil, err
	}

	repo.decorateLog(log.Logger.Debug, targetID).Msg("Successfully retrieved target secret")
	return secret, nil
}

func (repo *TargetSecretRepository) GetTargetSecrets() ([]models.TargetSecret, error) {
	secrets, err := executeWithResilience(repo, func() ([]models.TargetSecret, error) {
		var secrets = make([]models.TargetSecret, 0)
		query := `SELECT * FROM target_secrets ORDER BY target_id`
		if err := repo.psql.DB.Select(&secrets, query); err != nil {
			return nil, err
		}
		return secrets, nil
	})
	if err != nil {
		repo.logger.Error().Err(err).Msg("Failed to get all target secrets")
		return nil, err
	}
	return secrets, nil
}

// UpsertTargetSecret atomically replaces the stored bundle, fingerprint and
// sync timestamp for the target in a single statement, so readers never see
// a partially written secret.
func (repo *TargetSecretRepository) UpsertTargetSecret(secret *models.TargetSecret) error {
	if secret == nil || secret.TargetID == "" {
		return repository.ErrInvalidQueryParameters
	}

	_, err := executeWithResilience(repo, func() (struct{}, error) {
		query := `
			INSERT INTO target_secrets (target_id, data, fingerprint, last_synced_at)
			VALUES (:target_id, :data, :fingerprint, :last_synced_at)
			ON CONFLICT (target_id) DO UPDATE SET
				data = EXCLUDED.data,
				fingerprint = EXCLUDED.fingerprint,
				last_synced_at = EXCLUDED.last_synced_at`
		_, execErr := repo.psql.DB.NamedExec(query, secret)
		return struct{}{}, execErr
	})
	if err != nil {
		repo.decorateLog(log.Logger.Error, secret.TargetID).Err(err).Msg("Failed to upsert target secret")
		return err
	}

	repo.decorateLog(log.Logger.Debug, secret.TargetID).
		Str("fingerprint", secret.Fingerprint).
		Msg("Successfully upserted target secret")
	return nil
}

func (repo *TargetSecretRepository) DeleteTargetSecret(targetID string) error {
	if targetID == "" {
		return repository.ErrInvalidQueryParameters
	}

	_, err := executeWithResilience(repo, func() (struct{}, error) {
		query := `DELETE FROM target_secrets WHERE target_id = $1`
		_, execErr := repo.psql.DB.Exec(query, targetID)
		return struct{}{}, execErr
	})
	if err != nil {
		repo.decorateLog(log.Logger.Error, targetID).Err(err).Msg("Failed to delete target secret")
		return err
	}

	repo.decorateLog(log.Logger.Debug, targetID).Msg("Deleted target secret")
	return nil
}

func (repo *TargetSecretRepository) Close() error {
	return repo.psql.Close()
}

// executeWithResilience runs a query through the circuit breaker with retry.
// Row-not-found is a definitive answer and is neither retried nor counted
// against the breaker; everything else is retried and surfaces as a generic
// database error, or as unavailable once the breaker opens.
func executeWithResilience[T any](repo *TargetSecretRepository, op func() (T, error)) (T, error) {
	var zero T

	operation := func() (T, error) {
		result, err := repo.circuitBreaker.Execute(func() (interface{}, error) {
			return op()
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return zero, backoff.Permanent(fmt.Errorf("%w: %v", repository.ErrDatabaseUnavailable, err))
			}
			if errors.Is(err, sql.ErrNoRows) {
				return zero, backoff.Permanent(repository.ErrTargetSecretNotFound)
			}
			return zero, fmt.Errorf("%w: %v", repository.ErrDatabaseGeneric, err)
		}
		return result.(T), nil
	}

	return backoff.Retry(context.Background(), operation, repo.retryOptFunc()...)
}

//nolint:mnd
func newBackoffStrategy() []backoff.RetryOption {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 500 * time.Millisecond
	strategy.MaxInterval = 5 * time.Second

	return []backoff.RetryOption{
		backoff.WithBackOff(strategy),
		backoff.WithMaxTries(10),
	}
}

//nolint:mnd
func newQueryCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "target_secret_repository",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, sql.ErrNoRows)
		},
	})
}

func (repo *TargetSecretRepository) decorateLog(eventFactory func() *zerolog.Event, targetID string) *zerolog.Event {
	return eventFactory().Str("target_id", targetID)
}
