package repository

import (
	"errors"
)

var (
	ErrTargetSecretNotFound   = errors.New("target secret not found")
	ErrDatabaseUnavailable    = errors.New("database is unavailable")
	ErrDatabaseGeneric        = errors.New("database error occurred while processing request")
	ErrInvalidQueryParameters = errors.New("invalid query parameters provided for target secret operation")
)
