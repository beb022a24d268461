package models

import "time"

// StoreKind identifies the backend type a store descriptor points at.
type StoreKind string

const (
	StoreKindAWSSecretsManager StoreKind = "aws-secretsmanager"
	StoreKindVaultKV           StoreKind = "vault-kv"
)

func (k StoreKind) String() string {
	return string(k)
}

// StoreDescriptor describes a connection to an external secret backend.
// Descriptors are immutable once registered; replacing a store means
// registering a new descriptor under the same name.
type StoreDescriptor struct {
	Name string
	Kind StoreKind

	// AWS Secrets Manager fields.
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// Vault KV-v2 fields.
	Address string
	Token   string
	Mount   string
}

// KeyPair links a local target key to a property of the remote secret bundle.
type KeyPair struct {
	Local  string
	Remote string
}

// SecretMapping is a declarative rule linking a remote secret's properties
// to the keys of a local target secret.
type SecretMapping struct {
	TargetID        string
	Store           string
	RemoteKey       string
	Keys            []KeyPair
	RefreshInterval time.Duration
}
