package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SecretData is a local key/value bundle, stored as a JSONB column.
type SecretData map[string]string

func (d SecretData) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *SecretData) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	case nil:
		*d = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into SecretData", src)
	}
}

// TargetSecret is the reconciled local copy of a remote secret.
// It is owned exclusively by the sync engine: created on first successful
// sync, replaced atomically on drift, never partially written.
type TargetSecret struct {
	TargetID     string     `db:"target_id"`
	Data         SecretData `db:"data"`
	Fingerprint  string     `db:"fingerprint"`
	LastSyncedAt time.Time  `db:"last_synced_at"`
}
