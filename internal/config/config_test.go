package config

import (
	"maps"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

type configTestTable struct {
	name        string
	setFields   configFields
	errContains string
}

type configFields map[string]interface{}

var validAWSStore = configFields{
	"name":   "prod-aws",
	"kind":   "aws-secretsmanager",
	"region": "eu-west-1",
}

var validVaultStore = configFields{
	"name":    "prod-vault",
	"kind":    "vault-kv",
	"address": "http://vault:8200",
	"token":   "t",
	"mount":   "secret",
}

var validMapping = configFields{
	"target":           "db-creds",
	"store":            "prod-aws",
	"remote_key":       "prod/db",
	"refresh_interval": "1m",
	"keys":             []configFields{{"local": "user", "remote": "username"}},
}

var validAppConfig = configFields{
	"id":                      "test",
	"postgres.address":        "localhost",
	"postgres.port":           5432,
	"postgres.username":       "u",
	"postgres.password":       "p",
	"postgres.db_name":        "d",
	"postgres.max_connection": "10",
	"stores":                  []configFields{validAWSStore, validVaultStore},
	"mappings":                []configFields{validMapping},
}

func deleteFromMap(m configFields, keys ...string) configFields {
	clonedMap := maps.Clone(m)
	for _, argument := range keys {
		delete(clonedMap, argument)
	}

	return clonedMap
}

func updateAndReturnMap(m configFields, key string, value interface{}) configFields {
	clonedMap := maps.Clone(m)
	clonedMap[key] = value
	return clonedMap
}

func TestConfigLoadFromYAML(t *testing.T) {
	viper.Reset()
	viper.SetConfigFile(filepath.Join("testdata", "config.yaml"))
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadInConfig())

	cfg, err := NewConfig()

	require.NoError(t, err)

	require.Equal(t, "test", cfg.ID)
	require.Equal(t, "debug", cfg.LogLevel)

	// Check Postgres configuration
	require.Equal(t, "localhost", cfg.Postgres.Address)
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.Equal(t, "postgres", cfg.Postgres.Username)
	require.Equal(t, "secret_reflector", cfg.Postgres.DBName)
	require.Equal(t, "disable", cfg.Postgres.SSLMode)
	require.Equal(t, 10, cfg.Postgres.MaxConnections)

	// Check engine configuration
	require.Equal(t, 8, cfg.Engine.FetchSlotsPerStore)
	require.Equal(t, 45*time.Second, cfg.Engine.ReconcileTimeout)

	// Check store configuration
	require.Len(t, cfg.Stores, 2)

	awsStore := cfg.Stores[0]
	require.Equal(t, "prod-aws", awsStore.Name)
	require.Equal(t, "aws-secretsmanager", awsStore.Kind)
	require.Equal(t, "eu-west-1", awsStore.Region)

	vaultStore := cfg.Stores[1]
	require.Equal(t, "prod-vault", vaultStore.Name)
	require.Equal(t, "vault-kv", vaultStore.Kind)
	require.Equal(t, "http://vault:8200", vaultStore.Address)
	require.Equal(t, "test-token", vaultStore.Token)
	require.Equal(t, "secret", vaultStore.Mount)

	// Check mapping configuration
	require.Len(t, cfg.Mappings, 2)

	dbCreds := cfg.Mappings[0]
	require.Equal(t, "db-creds", dbCreds.Target)
	require.Equal(t, "prod-aws", dbCreds.Store)
	require.Equal(t, "prod/db", dbCreds.RemoteKey)
	require.Equal(t, time.Minute, dbCreds.RefreshInterval)
	require.Len(t, dbCreds.Keys, 2)
	require.Equal(t, "user", dbCreds.Keys[0].Local)
	require.Equal(t, "username", dbCreds.Keys[0].Remote)

	apiToken := cfg.Mappings[1]
	require.Equal(t, "api-token", apiToken.Target)
	require.Equal(t, "prod-vault", apiToken.Store)
	require.Equal(t, 30*time.Second, apiToken.RefreshInterval)
}

func TestConfigDefaults(t *testing.T) {
	viper.Reset()
	for k, v := range validAppConfig {
		viper.Set(k, v)
	}

	cfg, err := NewConfig()

	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "disable", cfg.Postgres.SSLMode)
	require.Equal(t, defaultFetchSlotsPerStore, cfg.Engine.FetchSlotsPerStore)
	require.Equal(t, defaultReconcileTimeout, cfg.Engine.ReconcileTimeout)
}

func TestConfigurationValidation(t *testing.T) {
	t.Run("returns config without error when config is valid", func(t *testing.T) {
		viper.Reset()
		viper.SetConfigFile(filepath.Join("testdata", "config.yaml"))
		viper.SetConfigType("yaml")
		require.NoError(t, viper.ReadInConfig())

		cfg, err := NewConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg)
	})

	t.Run("Return error when no config loaded", func(t *testing.T) {
		viper.Reset()
		viper.SetConfigType("yaml")

		_, err := NewConfig()
		require.Error(t, err)
		require.Contains(t, err.Error(), "is required")
	})

	t.Run("It fails on all required field if any is missing", func(t *testing.T) {
		tests := []configTestTable{
			{
				name:        "missing id",
				setFields:   deleteFromMap(validAppConfig, "id"),
				errContains: "Config.ID is required",
			},
			{
				name:        "missing postgres.address",
				setFields:   deleteFromMap(validAppConfig, "postgres.address"),
				errContains: "Config.Postgres.Address is required",
			},
			{
				name:        "invalid postgres.address",
				setFields:   updateAndReturnMap(validAppConfig, "postgres.address", "sfg://a"),
				errContains: "Config.Postgres.Address must be a valid hostname or IP address",
			},
			{
				name:        "missing postgres.port",
				setFields:   deleteFromMap(validAppConfig, "postgres.port"),
				errContains: "Config.Postgres.Port is required",
			},
			{
				name:        "invalid postgres.port greater than 65536",
				setFields:   updateAndReturnMap(validAppConfig, "postgres.port", 70000),
				errContains: "Config.Postgres.Port must be less than 65536",
			},
			{
				name:        "invalid postgres.port less than 0",
				setFields:   updateAndReturnMap(validAppConfig, "postgres.port", -1),
				errContains: "Config.Postgres.Port must be greater than 0",
			},
			{
				name:        "invalid postgres.port",
				setFields:   updateAndReturnMap(validAppConfig, "postgres.port", "a"),
				errContains: "cannot parse 'postgres.port' as int",
			},
			{
				name:        "missing postgres.username",
				setFields:   deleteFromMap(validAppConfig, "postgres.username"),
				errContains: "Config.Postgres.Username is required",
			},
			{
				name:        "missing postgres.password",
				setFields:   deleteFromMap(validAppConfig, "postgres.password"),
				errContains: "Config.Postgres.Password is required",
			},
			{
				name:        "missing postgres.db_name",
				setFields:   deleteFromMap(validAppConfig, "postgres.db_name"),
				errContains: "Config.Postgres.DBName is required",
			},
			{
				name:        "missing stores",
				setFields:   deleteFromMap(validAppConfig, "stores"),
				errContains: "Config.Stores is required",
			},
			{
				name:        "empty stores",
				setFields:   updateAndReturnMap(validAppConfig, "stores", []configFields{}),
				errContains: "Config.Stores is required",
			},
			{
				name:        "missing store.name",
				setFields:   updateAndReturnMap(validAppConfig, "stores", []configFields{deleteFromMap(validAWSStore, "name")}),
				errContains: "Config.Stores[0].Name is required",
			},
			{
				name:        "missing store.kind",
				setFields:   updateAndReturnMap(validAppConfig, "stores", []configFields{deleteFromMap(validAWSStore, "kind")}),
				errContains: "Config.Stores[0].Kind is required",
			},
			{
				name:        "unsupported store.kind",
				setFields:   updateAndReturnMap(validAppConfig, "stores", []configFields{updateAndReturnMap(validAWSStore, "kind", "gcp-sm")}),
				errContains: "Config.Stores[0].Kind must be one of [aws-secretsmanager vault-kv]",
			},
			{
				name:        "missing region for aws store",
				setFields:   updateAndReturnMap(validAppConfig, "stores", []configFields{deleteFromMap(validAWSStore, "region")}),
				errContains: "Config.Stores[0].Region is required",
			},
			{
				name:        "missing address for vault store",
				setFields:   updateAndReturnMap(validAppConfig, "stores", []configFields{updateAndReturnMap(deleteFromMap(validVaultStore, "address"), "name", "prod-aws")}),
				errContains: "Config.Stores[0].Address is required",
			},
			{
				name:        "missing token for vault store",
				setFields:   updateAndReturnMap(validAppConfig, "stores", []configFields{updateAndReturnMap(deleteFromMap(validVaultStore, "token"), "name", "prod-aws")}),
				errContains: "Config.Stores[0].Token is required",
			},
			{
				name:        "missing mount for vault store",
				setFields:   updateAndReturnMap(validAppConfig, "stores", []configFields{updateAndReturnMap(deleteFromMap(validVaultStore, "mount"), "name", "prod-aws")}),
				errContains: "Config.Stores[0].Mount is required",
			},
			{
				name:        "missing mappings",
				setFields:   deleteFromMap(validAppConfig, "mappings"),
				errContains: "Config.Mappings is required",
			},
			{
				name:        "missing mapping.target",
				setFields:   updateAndReturnMap(validAppConfig, "mappings", []configFields{deleteFromMap(validMapping, "target")}),
				errContains: "Config.Mappings[0].Target is required",
			},
			{
				name:        "missing mapping.store",
				setFields:   updateAndReturnMap(validAppConfig, "mappings", []configFields{deleteFromMap(validMapping, "store")}),
				errContains: "Config.Mappings[0].Store is required",
			},
			{
				name:        "missing mapping.remote_key",
				setFields:   updateAndReturnMap(validAppConfig, "mappings", []configFields{deleteFromMap(validMapping, "remote_key")}),
				errContains: "Config.Mappings[0].RemoteKey is required",
			},
			{
				name:        "missing mapping.refresh_interval",
				setFields:   updateAndReturnMap(validAppConfig, "mappings", []configFields{deleteFromMap(validMapping, "refresh_interval")}),
				errContains: "Config.Mappings[0].RefreshInterval is required",
			},
			{
				name:        "negative mapping.refresh_interval",
				setFields:   updateAndReturnMap(validAppConfig, "mappings", []configFields{updateAndReturnMap(validMapping, "refresh_interval", "-1m")}),
				errContains: "Config.Mappings[0].RefreshInterval must be greater than 0",
			},
			{
				name:        "empty mapping.keys",
				setFields:   updateAndReturnMap(validAppConfig, "mappings", []configFields{updateAndReturnMap(validMapping, "keys", []configFields{})}),
				errContains: "Config.Mappings[0].Keys is required",
			},
			{
				name:        "missing key pair local",
				setFields:   updateAndReturnMap(validAppConfig, "mappings", []configFields{updateAndReturnMap(validMapping, "keys", []configFields{{"remote": "username"}})}),
				errContains: "Config.Mappings[0].Keys[0].Local is required",
			},
			{
				name:        "missing key pair remote",
				setFields:   updateAndReturnMap(validAppConfig, "mappings", []configFields{updateAndReturnMap(validMapping, "keys", []configFields{{"local": "user"}})}),
				errContains: "Config.Mappings[0].Keys[0].Remote is required",
			},
			{
				name:        "negative engine.fetch_slots_per_store",
				setFields:   updateAndReturnMap(validAppConfig, "engine.fetch_slots_per_store", -1),
				errContains: "Config.Engine.FetchSlotsPerStore must be greater than 0",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				viper.Reset()
				for k, v := range tt.setFields {
					viper.Set(k, v)
				}

				_, err := NewConfig()

				require.Error(t, err)
				require.Contains(t, err.Error(), tt.errContains)
			})
		}
	})

	t.Run("It fails on broken cross references", func(t *testing.T) {
		tests := []configTestTable{
			{
				name: "duplicate store names",
				setFields: updateAndReturnMap(validAppConfig, "stores",
					[]configFields{validAWSStore, updateAndReturnMap(validVaultStore, "name", "prod-aws")}),
				errContains: `duplicate store name "prod-aws"`,
			},
			{
				name: "duplicate targets",
				setFields: updateAndReturnMap(validAppConfig, "mappings",
					[]configFields{validMapping, maps.Clone(validMapping)}),
				errContains: `duplicate target "db-creds"`,
			},
			{
				name: "mapping references unknown store",
				setFields: updateAndReturnMap(validAppConfig, "mappings",
					[]configFields{updateAndReturnMap(validMapping, "store", "ghost")}),
				errContains: `references unknown store "ghost"`,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				viper.Reset()
				for k, v := range tt.setFields {
					viper.Set(k, v)
				}

				_, err := NewConfig()

				require.Error(t, err)
				require.Contains(t, err.Error(), tt.errContains)
			})
		}
	})
}

func TestConfigConverters(t *testing.T) {
	viper.Reset()
	viper.SetConfigFile(filepath.Join("testdata", "config.yaml"))
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadInConfig())

	cfg, err := NewConfig()
	require.NoError(t, err)

	t.Run("StoreDescriptors carries every store field", func(t *testing.T) {
		descriptors := cfg.StoreDescriptors()

		require.Len(t, descriptors, 2)
		require.Equal(t, "prod-aws", descriptors[0].Name)
		require.Equal(t, "aws-secretsmanager", descriptors[0].Kind.String())
		require.Equal(t, "eu-west-1", descriptors[0].Region)
		require.Equal(t, "prod-vault", descriptors[1].Name)
		require.Equal(t, "http://vault:8200", descriptors[1].Address)
		require.Equal(t, "secret", descriptors[1].Mount)
	})

	t.Run("SecretMappings carries every mapping field", func(t *testing.T) {
		mappings := cfg.SecretMappings()

		require.Len(t, mappings, 2)
		require.Equal(t, "db-creds", mappings[0].TargetID)
		require.Equal(t, "prod-aws", mappings[0].Store)
		require.Equal(t, "prod/db", mappings[0].RemoteKey)
		require.Equal(t, time.Minute, mappings[0].RefreshInterval)
		require.Len(t, mappings[0].Keys, 2)
		require.Equal(t, "user", mappings[0].Keys[0].Local)
		require.Equal(t, "username", mappings[0].Keys[0].Remote)
	})
}
