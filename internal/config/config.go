package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"secret-reflector/internal/models"
)

type Config struct {
	ID       string    `mapstructure:"id" validate:"required"`
	LogLevel string    `mapstructure:"log_level"`
	Postgres Postgres  `mapstructure:"postgres"`
	Engine   Engine    `mapstructure:"engine"`
	Stores   []Store   `mapstructure:"stores" validate:"required,min=1,dive"`
	Mappings []Mapping `mapstructure:"mappings" validate:"required,min=1,dive"`
}

type Postgres struct {
	Address        string `mapstructure:"address" validate:"required,hostname|ip"`
	Port           int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	Username       string `mapstructure:"username" validate:"required"`
	Password       string `mapstructure:"password" validate:"required"`
	DBName         string `mapstructure:"db_name" validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connection"`
}

type Engine struct {
	FetchSlotsPerStore int           `mapstructure:"fetch_slots_per_store" validate:"omitempty,gt=0"`
	ReconcileTimeout   time.Duration `mapstructure:"reconcile_timeout" validate:"omitempty,gt=0"`
}

type Store struct {
	Name string `mapstructure:"name" validate:"required"`
	Kind string `mapstructure:"kind" validate:"required,oneof=aws-secretsmanager vault-kv"`

	// aws-secretsmanager
	Region          string `mapstructure:"region" validate:"required_if=Kind aws-secretsmanager"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// vault-kv
	Address string `mapstructure:"address" validate:"required_if=Kind vault-kv"`
	Token   string `mapstructure:"token" validate:"required_if=Kind vault-kv"`
	Mount   string `mapstructure:"mount" validate:"required_if=Kind vault-kv"`
}

type Mapping struct {
	Target          string        `mapstructure:"target" validate:"required"`
	Store           string        `mapstructure:"store" validate:"required"`
	RemoteKey       string        `mapstructure:"remote_key" validate:"required"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"required,gt=0"`
	Keys            []KeyPair     `mapstructure:"keys" validate:"required,min=1,dive"`
}

type KeyPair struct {
	Local  string `mapstructure:"local" validate:"required"`
	Remote string `mapstructure:"remote" validate:"required"`
}

const (
	defaultFetchSlotsPerStore = 4
	defaultReconcileTimeout   = 30 * time.Second
)

func NewConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Engine.FetchSlotsPerStore == 0 {
		c.Engine.FetchSlotsPerStore = defaultFetchSlotsPerStore
	}
	if c.Engine.ReconcileTimeout == 0 {
		c.Engine.ReconcileTimeout = defaultReconcileTimeout
	}
}

func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return errors.New(formatValidationErrors(validationErrors))
		}
		return err
	}

	return c.validateReferences()
}

// validateReferences enforces the cross-field invariants that struct tags
// cannot express: unique target identifiers, unique store names, and
// mappings referencing registered stores only.
func (c *Config) validateReferences() error {
	storeNames := make(map[string]bool, len(c.Stores))
	for _, store := range c.Stores {
		if storeNames[store.Name] {
			return fmt.Errorf("Config.Stores contains duplicate store name %q", store.Name)
		}
		storeNames[store.Name] = true
	}

	targets := make(map[string]bool, len(c.Mappings))
	for _, mapping := range c.Mappings {
		if targets[mapping.Target] {
			return fmt.Errorf("Config.Mappings contains duplicate target %q", mapping.Target)
		}
		targets[mapping.Target] = true

		if !storeNames[mapping.Store] {
			return fmt.Errorf("Config.Mappings target %q references unknown store %q", mapping.Target, mapping.Store)
		}
	}

	return nil
}

func formatValidationErrors(validationErrors validator.ValidationErrors) string {
	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, formatFieldError(fieldError))
	}
	return strings.Join(messages, "; ")
}

func formatFieldError(fieldError validator.FieldError) string {
	field := fieldError.Namespace()
	switch fieldError.Tag() {
	case "required", "required_if", "min":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fieldError.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fieldError.Param())
	case "hostname|ip":
		return fmt.Sprintf("%s must be a valid hostname or IP address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fieldError.Param())
	default:
		return fmt.Sprintf("%s failed validation on %s", field, fieldError.Tag())
	}
}

// StoreDescriptors converts the configured stores into registry descriptors.
func (c *Config) StoreDescriptors() []models.StoreDescriptor {
	descriptors := make([]models.StoreDescriptor, 0, len(c.Stores))
	for _, store := range c.Stores {
		descriptors = append(descriptors, models.StoreDescriptor{
			Name:            store.Name,
			Kind:            models.StoreKind(store.Kind),
			Region:          store.Region,
			Endpoint:        store.Endpoint,
			AccessKeyID:     store.AccessKeyID,
			SecretAccessKey: store.SecretAccessKey,
			Address:         store.Address,
			Token:           store.Token,
			Mount:           store.Mount,
		})
	}
	return descriptors
}

// SecretMappings converts the configured mappings into engine mappings.
func (c *Config) SecretMappings() []models.SecretMapping {
	mappings := make([]models.SecretMapping, 0, len(c.Mappings))
	for _, mapping := range c.Mappings {
		keys := make([]models.KeyPair, 0, len(mapping.Keys))
		for _, pair := range mapping.Keys {
			keys = append(keys, models.KeyPair{Local: pair.Local, Remote: pair.Remote})
		}
		mappings = append(mappings, models.SecretMapping{
			TargetID:        mapping.Target,
			Store:           mapping.Store,
			RemoteKey:       mapping.RemoteKey,
			Keys:            keys,
			RefreshInterval: mapping.RefreshInterval,
		})
	}
	return mappings
}
