package notifier

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"secret-reflector/pkg/log"
)

// ChangeEvent announces that a target secret's content changed. Delivery is
// at-least-once with the latest fingerprint as payload, so consumers must be
// idempotent on repeated delivery of the same fingerprint.
type ChangeEvent struct {
	TargetID    string
	Fingerprint string
	At          time.Time
}

// ChangeNotifier fans change events out to consumers registered by target
// identifier. The sync engine publishes exactly once per successful
// fingerprint change and never for no-op reconciliations.
type ChangeNotifier struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscription
	logger      zerolog.Logger
}

type subscription struct {
	targetID string
	events   chan ChangeEvent
}

func NewChangeNotifier() *ChangeNotifier {
	return &ChangeNotifier{
		subscribers: make(map[string][]*subscription),
		logger:      log.Logger.With().Str("component", "change_notifier").Logger(),
	}
}

// Subscribe registers interest in a target's change events. The returned
// cancel function removes the subscription and closes the channel.
//
// Each subscriber holds a one-slot buffer: a slow consumer is conflated to
// the latest fingerprint rather than blocking the engine.
func (n *ChangeNotifier) Subscribe(targetID string) (<-chan ChangeEvent, func()) {
	sub := &subscription{
		targetID: targetID,
		events:   make(chan ChangeEvent, 1),
	}

	n.mu.Lock()
	n.subscribers[targetID] = append(n.subscribers[targetID], sub)
	n.mu.Unlock()

	n.logger.Debug().Str("target_id", targetID).Msg("Registered change subscriber")

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subscribers[targetID]
		for i, s := range subs {
			if s == sub {
				n.subscribers[targetID] = append(subs[:i], subs[i+1:]...)
				close(sub.events)
				return
			}
		}
	}

	return sub.events, cancel
}

// Publish delivers the new fingerprint to every subscriber of the target.
func (n *ChangeNotifier) Publish(targetID, fingerprint string) {
	event := ChangeEvent{
		TargetID:    targetID,
		Fingerprint: fingerprint,
		At:          time.Now(),
	}

	n.mu.RLock()
	subs := n.subscribers[targetID]
	n.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- event:
		default:
			// Subscriber has an undelivered event; replace it with the
			// newer fingerprint.
			select {
			case <-sub.events:
			default:
			}
			select {
			case sub.events <- event:
			default:
			}
		}
	}

	n.logger.Info().
		Str("target_id", targetID).
		Str("fingerprint", fingerprint).
		Int("subscriber_count", len(subs)).
		Msg("Published change event")
}
