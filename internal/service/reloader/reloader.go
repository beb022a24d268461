package reloader

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"secret-reflector/internal/service/notifier"
	"secret-reflector/pkg/log"
)

// Reloader is the built-in change consumer: it subscribes to target change
// events and triggers a workload reload per new fingerprint. Delivery from
// the notifier is at-least-once, so the reloader dedupes by remembering the
// last fingerprint it acted on per target.
type Reloader struct {
	notifier *notifier.ChangeNotifier
	targets  []string

	mu       sync.Mutex
	lastSeen map[string]string

	logger zerolog.Logger
}

func NewReloader(changeNotifier *notifier.ChangeNotifier, targets []string) *Reloader {
	return &Reloader{
		notifier: changeNotifier,
		targets:  targets,
		lastSeen: make(map[string]string, len(targets)),
		logger:   log.Logger.With().Str("component", "reloader").Logger(),
	}
}

// Run subscribes to every configured target and blocks until the context is
// cancelled.
func (r *Reloader) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, targetID := range r.targets {
		events, cancel := r.notifier.Subscribe(targetID)

		wg.Add(1)
		go func(targetID string, events <-chan notifier.ChangeEvent, cancel func()) {
			defer wg.Done()
			defer cancel()

			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-events:
					if !ok {
						return
					}
					r.handle(event)
				}
			}
		}(targetID, events, cancel)
	}

	wg.Wait()
}

func (r *Reloader) handle(event notifier.ChangeEvent) {
	if !r.markHandled(event.TargetID, event.Fingerprint) {
		r.logger.Debug().
			Str("target_id", event.TargetID).
			Str("fingerprint", event.Fingerprint).
			Msg("Fingerprint already handled, skipping reload")
		return
	}

	r.logger.Info().
		Str("target_id", event.TargetID).
		Str("fingerprint", event.Fingerprint).
		Time("changed_at", event.At).
		Msg("Target secret changed, triggering workload reload")
}

// markHandled records the fingerprint and reports whether it is new for the
// target.
func (r *Reloader) markHandled(targetID, fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSeen[targetID] == fingerprint {
		return false
	}
	r.lastSeen[targetID] = fingerprint
	return true
}
