package backend

import "context"

// Client abstracts fetching a named secret's property bundle from an
// external store. Implementations classify failures into the sentinel
// errors of this package so callers never branch on backend-specific types.
type Client interface {
	// Fetch returns the property bundle stored under remoteKey.
	Fetch(ctx context.Context, remoteKey string) (map[string]string, error)

	// Probe performs a lightweight reachability and credential check,
	// cheaper than a full Fetch.
	Probe(ctx context.Context) error

	Kind() string
}
