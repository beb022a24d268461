package configprint

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"secret-reflector/internal/config"
	"secret-reflector/pkg/log"
)

var (
	sectionFlag string
	formatFlag  string
)

var ConfigPrintCmd = &cobra.Command{
	Use:   "config-print",
	Short: "Print the current configuration",
	Long: `Print the loaded configuration or a specific section of it, with
credentials redacted. Supports YAML and JSON output formats.`,
	Example: `  # Print entire config
  secret-reflector config-print

  # Print specific section
  secret-reflector config-print --section stores
  secret-reflector config-print --section mappings

  # Print in YAML format
  secret-reflector config-print --section postgres --format yaml`,
	Run: run,
}

func init() {
	ConfigPrintCmd.Flags().StringVarP(&sectionFlag, "section", "s", "",
		"print only a specific section (stores, mappings, postgres, engine)")
	ConfigPrintCmd.Flags().StringVarP(&formatFlag, "format", "f", "json",
		"output format (yaml|json)")
}

func run(_ *cobra.Command, _ []string) {
	logger := log.Logger.With().Str("component", "config_print").Logger()

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return
	}
	redact(cfg)

	var output interface{}

	if sectionFlag == "" {
		output = cfg
		logger.Info().Msg("Printing entire configuration")
	} else {
		output, err = getSection(cfg, sectionFlag)
		if err != nil {
			logger.Error().Err(err).Str("section", sectionFlag).Msg("Invalid section")
			return
		}
		logger.Info().Str("section", sectionFlag).Msg("Printing configuration section")
	}

	switch formatFlag {
	case "yaml":
		printYAML(logger, output)
	case "json":
		printJSON(logger, output)
	default:
		logger.Error().Msgf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

const redacted = "xxxxx"

func redact(cfg *config.Config) {
	cfg.Postgres.Password = redacted
	for i := range cfg.Stores {
		if cfg.Stores[i].Token != "" {
			cfg.Stores[i].Token = redacted
		}
		if cfg.Stores[i].SecretAccessKey != "" {
			cfg.Stores[i].SecretAccessKey = redacted
		}
	}
}

func getSection(cfg *config.Config, section string) (interface{}, error) {
	switch section {
	case "stores":
		return cfg.Stores, nil
	case "mappings":
		return cfg.Mappings, nil
	case "postgres":
		return cfg.Postgres, nil
	case "engine":
		return cfg.Engine, nil
	case "log_level":
		return map[string]string{"log_level": cfg.LogLevel}, nil
	case "id":
		return map[string]string{"id": cfg.ID}, nil
	default:
		return nil,
			fmt.Errorf(
				"unknown section: %s (valid: stores, mappings, postgres, engine, id, log_level)",
				section,
			)
	}
}

func printYAML(logger zerolog.Logger, data interface{}) {
	bytes, err := yaml.Marshal(data)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode YAML")
	}
	content := string(bytes)
	logger.Info().
		Str("format", "yaml").
		Str("config", "\n"+content).
		Msg("Printing Configuration")
}

func printJSON(logger zerolog.Logger, data interface{}) {
	logger.Info().Interface("config", data).Msg("Printing Configuration")
}
