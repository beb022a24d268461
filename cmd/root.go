package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"secret-reflector/cmd/configprint"
	"secret-reflector/cmd/sync"
	"secret-reflector/cmd/version"
)

var cfgFile string

const (
	CFG_FLAG_NAME = "config"
)

var RootCmd = &cobra.Command{
	Use:   "secret-reflector",
	Short: "Secret Reflector syncs external secrets into local targets",
	Long: `Secret Reflector is a reconciliation engine that periodically pulls secrets
from external backends (AWS Secrets Manager, Vault KV), projects them through
declarative mappings into local target secrets, and emits change events that
workload restarters can consume.`,
}

func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d, b string) {
	version.SetVersionInfo(v, c, d, b)
}

func init() {

	RootCmd.PersistentFlags().StringVarP(&cfgFile, CFG_FLAG_NAME, "c", "", "path to config file")

	viper.BindPFlag(CFG_FLAG_NAME, RootCmd.PersistentFlags().Lookup(CFG_FLAG_NAME))
	viper.SetConfigName(cfgFile)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("secret_reflector")
	viper.AddConfigPath(".")                       // For running from project root
	viper.AddConfigPath("/etc/secret-reflector/")  // For production
	viper.AddConfigPath("$HOME/.secret-reflector") // For user-specific config

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	RootCmd.AddCommand(sync.SyncCmd)
	RootCmd.AddCommand(version.VersionCmd)
	RootCmd.AddCommand(configprint.ConfigPrintCmd)
}
