package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	t.Run("identical bundles share a fingerprint", func(t *testing.T) {
		a := map[string]string{"user": "svc", "password": "hunter2"}
		b := map[string]string{"user": "svc", "password": "hunter2"}

		require.Equal(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("fingerprint is independent of insertion order", func(t *testing.T) {
		a := map[string]string{}
		a["alpha"] = "1"
		a["beta"] = "2"
		a["gamma"] = "3"

		b := map[string]string{}
		b["gamma"] = "3"
		b["alpha"] = "1"
		b["beta"] = "2"

		require.Equal(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("any difference changes the fingerprint", func(t *testing.T) {
		base := map[string]string{"user": "svc", "password": "hunter2"}

		tests := []struct {
			name   string
			bundle map[string]string
		}{
			{
				name:   "changed value",
				bundle: map[string]string{"user": "svc", "password": "hunter3"},
			},
			{
				name:   "changed key",
				bundle: map[string]string{"username": "svc", "password": "hunter2"},
			},
			{
				name:   "extra key",
				bundle: map[string]string{"user": "svc", "password": "hunter2", "host": "db"},
			},
			{
				name:   "missing key",
				bundle: map[string]string{"user": "svc"},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				require.NotEqual(t, Fingerprint(base), Fingerprint(tt.bundle))
			})
		}
	})

	t.Run("length prefixes prevent boundary shifting", func(t *testing.T) {
		// Without length prefixes both bundles would hash the same bytes.
		a := map[string]string{"ab": "c"}
		b := map[string]string{"a": "bc"}

		require.NotEqual(t, Fingerprint(a), Fingerprint(b))
	})

	t.Run("empty bundle has a stable fingerprint", func(t *testing.T) {
		require.Equal(t, Fingerprint(map[string]string{}), Fingerprint(nil))
	})
}
