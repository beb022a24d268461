package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"secret-reflector/internal/backend"
	"secret-reflector/internal/models"
	"secret-reflector/internal/repository"
)

type OutcomeStatus string

const (
	OutcomeUpdated   OutcomeStatus = "updated"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// ReconcileOutcome is the result of a single fetch-compare-write cycle for
// one mapping.
type ReconcileOutcome struct {
	TargetID    string
	Status      OutcomeStatus
	Fingerprint string
	Err         error
}

// refreshJitterFraction spreads mapping timers by ±10% so that mappings with
// the same refresh interval do not tick in lockstep against the backend.
const refreshJitterFraction = 0.1

// runMapping is the per-mapping reconciliation loop. Reconciliations run
// synchronously inside the loop, so at most one is in flight per mapping;
// a tick that would have fired mid-run is simply absorbed into the next
// timer reset.
func (e *SyncEngine) runMapping(ctx context.Context, mapping models.SecretMapping) {
	logger := e.logger.With().
		Str("target_id", mapping.TargetID).
		Str("store", mapping.Store).
		Dur("refresh_interval", mapping.RefreshInterval).
		Logger()
	logger.Info().Msg("Starting mapping reconciler")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Stopping mapping reconciler")
			return
		case <-timer.C:
		}

		outcome := e.reconcile(ctx, mapping)
		logger.Debug().
			Str("outcome", string(outcome.Status)).
			Msg("Reconciliation finished")

		timer.Reset(jitteredInterval(mapping.RefreshInterval))
	}
}

// reconcile performs one fetch-compare-write cycle. On any failure the
// existing target secret is left untouched: stale-but-available beats
// unavailable.
func (e *SyncEngine) reconcile(ctx context.Context, mapping models.SecretMapping) *ReconcileOutcome {
	logger := e.logger.With().
		Str("event", "reconcile").
		Str("target_id", mapping.TargetID).
		Str("store", mapping.Store).
		Str("remote_key", mapping.RemoteKey).
		Logger()

	reconcileCtx, cancel := context.WithTimeout(ctx, e.reconcileTimeout)
	defer cancel()

	fail := func(err error, msg string) *ReconcileOutcome {
		logger.Error().Err(err).Msg(msg)
		e.transition(mapping.TargetID, models.StateError, err.Error())
		return &ReconcileOutcome{TargetID: mapping.TargetID, Status: OutcomeFailed, Err: err}
	}

	client, err := e.registry.Client(mapping.Store)
	if err != nil {
		return fail(err, "Mapping references an unknown store")
	}

	release, err := e.registry.AcquireFetchSlot(reconcileCtx, mapping.Store)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Debug().Msg("Reconciliation skipped, context done while waiting for fetch slot")
			return &ReconcileOutcome{TargetID: mapping.TargetID, Status: OutcomeSkipped, Err: err}
		}
		return fail(err, "Failed to acquire fetch slot")
	}

	bundle, err := client.Fetch(reconcileCtx, mapping.RemoteKey)
	release()
	if err != nil {
		return fail(err, "Failed to fetch remote bundle")
	}

	candidate, err := projectBundle(bundle, mapping.Keys)
	if err != nil {
		return fail(err, "Failed to project remote bundle onto target keys")
	}

	fingerprint := models.Fingerprint(candidate)

	current, err := e.repo.GetTargetSecret(mapping.TargetID)
	if err != nil && !errors.Is(err, repository.ErrTargetSecretNotFound) {
		return fail(err, "Failed to load stored target secret")
	}

	if current != nil && current.Fingerprint == fingerprint {
		e.transition(mapping.TargetID, models.StateSynced, "")
		logger.Debug().Str("fingerprint", fingerprint).Msg("Target secret unchanged, skipping write")
		return &ReconcileOutcome{TargetID: mapping.TargetID, Status: OutcomeUnchanged, Fingerprint: fingerprint}
	}

	secret := &models.TargetSecret{
		TargetID:     mapping.TargetID,
		Data:         candidate,
		Fingerprint:  fingerprint,
		LastSyncedAt: time.Now().UTC(),
	}
	if err := e.repo.UpsertTargetSecret(secret); err != nil {
		return fail(err, "Failed to write target secret")
	}

	e.transition(mapping.TargetID, models.StateSynced, "")
	e.notifier.Publish(mapping.TargetID, fingerprint)

	logger.Info().Str("fingerprint", fingerprint).Msg("Target secret updated")
	return &ReconcileOutcome{TargetID: mapping.TargetID, Status: OutcomeUpdated, Fingerprint: fingerprint}
}

// projectBundle maps remote properties onto local keys. A declared property
// missing from the bundle fails the whole projection; partial targets are
// never produced.
func projectBundle(bundle map[string]string, keys []models.KeyPair) (map[string]string, error) {
	candidate := make(map[string]string, len(keys))
	for _, pair := range keys {
		value, ok := bundle[pair.Remote]
		if !ok {
			return nil, fmt.Errorf("%w: %q", backend.ErrMissingProperty, pair.Remote)
		}
		candidate[pair.Local] = value
	}
	return candidate, nil
}

func jitteredInterval(base time.Duration) time.Duration {
	spread := 1 - refreshJitterFraction + 2*refreshJitterFraction*rand.Float64()
	return time.Duration(float64(base) * spread)
}
