package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"secret-reflector/internal/models"
	"secret-reflector/internal/registry"
	"secret-reflector/internal/repository"
	"secret-reflector/internal/service/notifier"
	"secret-reflector/pkg/log"
)

// SyncResult aggregates the outcome of one reconciliation pass over every
// mapping (used by the `sync once` mode).
type SyncResult struct {
	TotalMappings int
	Updated       int
	Unchanged     int
	Failed        int
	Skipped       int
	Duration      time.Duration
	Outcomes      []*ReconcileOutcome
}

// SyncEngine drives each secret mapping through periodic reconciliation.
// Mappings are independent units of work: each runs on its own jittered
// timer and never blocks another mapping.
type SyncEngine struct {
	registry         *registry.StoreRegistry
	repo             repository.TargetSecretRepository
	notifier         *notifier.ChangeNotifier
	mappings         []models.SecretMapping
	reconcileTimeout time.Duration

	statusMu sync.RWMutex
	statuses map[string]*models.MappingStatus

	logger zerolog.Logger
}

func NewSyncEngine(
	storeRegistry *registry.StoreRegistry,
	repo repository.TargetSecretRepository,
	changeNotifier *notifier.ChangeNotifier,
	mappings []models.SecretMapping,
	reconcileTimeout time.Duration,
) *SyncEngine {
	statuses := make(map[string]*models.MappingStatus, len(mappings))
	now := time.Now()
	for _, mapping := range mappings {
		statuses[mapping.TargetID] = &models.MappingStatus{
			TargetID:       mapping.TargetID,
			State:          models.StatePending,
			LastTransition: now,
		}
	}

	return &SyncEngine{
		registry:         storeRegistry,
		repo:             repo,
		notifier:         changeNotifier,
		mappings:         mappings,
		reconcileTimeout: reconcileTimeout,
		statuses:         statuses,
		logger:           log.Logger.With().Str("component", "sync_engine").Logger(),
	}
}

// Run starts one reconciler per mapping and blocks until the context is
// cancelled. Each reconciler fires an immediate first reconciliation, then
// settles into its jittered refresh interval. In-flight fetches are allowed
// to finish under the engine's reconcile timeout rather than being aborted
// mid-write.
func (e *SyncEngine) Run(ctx context.Context) {
	e.logger.Info().
		Int("mapping_count", len(e.mappings)).
		Dur("reconcile_timeout", e.reconcileTimeout).
		Msg("Starting sync engine")

	var wg sync.WaitGroup
	for _, mapping := range e.mappings {
		wg.Add(1)
		go func(m models.SecretMapping) {
			defer wg.Done()
			e.runMapping(ctx, m)
		}(mapping)
	}

	wg.Wait()
	e.logger.Info().Msg("Sync engine stopped")
}

// RunOnce performs a single reconciliation pass over every mapping in
// parallel and returns the aggregated result.
func (e *SyncEngine) RunOnce(ctx context.Context) (*SyncResult, error) {
	startTime := time.Now()
	e.logger.Info().Int("mapping_count", len(e.mappings)).Msg("Starting one-shot reconciliation")

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	outcomes := make(chan *ReconcileOutcome, len(e.mappings))
	var wg sync.WaitGroup
	for _, mapping := range e.mappings {
		wg.Add(1)
		go func(m models.SecretMapping) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				outcomes <- &ReconcileOutcome{TargetID: m.TargetID, Status: OutcomeSkipped, Err: ctx.Err()}
				return
			default:
			}
			outcomes <- e.reconcile(ctx, m)
		}(mapping)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := e.collectOutcomes(outcomes)
	result.TotalMappings = len(e.mappings)
	result.Duration = time.Since(startTime)

	e.logSummary(result)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func (e *SyncEngine) collectOutcomes(outcomes chan *ReconcileOutcome) *SyncResult {
	result := &SyncResult{Outcomes: make([]*ReconcileOutcome, 0, len(e.mappings))}

	for outcome := range outcomes {
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Status {
		case OutcomeUpdated:
			result.Updated++
		case OutcomeUnchanged:
			result.Unchanged++
		case OutcomeSkipped:
			result.Skipped++
		case OutcomeFailed:
			result.Failed++
			e.logger.Error().
				Err(outcome.Err).
				Str("target_id", outcome.TargetID).
				Msg("Mapping reconciliation failed")
		}
	}

	return result
}

// Statuses returns a point-in-time snapshot of every mapping's health,
// ordered by target identifier.
func (e *SyncEngine) Statuses() []models.MappingStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()

	snapshot := make([]models.MappingStatus, 0, len(e.statuses))
	for _, status := range e.statuses {
		snapshot = append(snapshot, *status)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].TargetID < snapshot[j].TargetID
	})
	return snapshot
}

func (e *SyncEngine) transition(targetID string, state models.SyncState, reason string) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if status, ok := e.statuses[targetID]; ok {
		status.Transition(state, reason, time.Now())
	}
}

func (e *SyncEngine) logSummary(result *SyncResult) {
	e.logger.Info().
		Int("total", result.TotalMappings).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Reconciliation pass completed")
}
