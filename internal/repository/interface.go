package repository

import "secret-reflector/internal/models"

// TargetSecretRepository persists the reconciled target secrets. The sync
// engine is the only writer; replaces are atomic at the row level.
type TargetSecretRepository interface {
	GetTargetSecret(targetID string) (*models.TargetSecret, error)
	GetTargetSecrets() ([]models.TargetSecret, error)
	UpsertTargetSecret(secret *models.TargetSecret) error
	DeleteTargetSecret(targetID string) error
	Close() error
}
