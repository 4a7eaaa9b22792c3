package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/google/magic-github-proxy/internal/buildinfo"
	"github.com/google/magic-github-proxy/internal/config"
	"github.com/google/magic-github-proxy/internal/logging"
)

// global flags
var (
	configFile string
	f          = NewFactory()
)

const (
	// ServerAddrKey is the address of a running proxy used by remote commands.
	ServerAddrKey = "server"

	// AdminTokenKey is the admin session token sent to the audit API.
	AdminTokenKey = "admin_token"
)

var rootCmd = &cobra.Command{
	Use:   "magicproxy",
	Short: fmt.Sprintf("magicproxy (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `magicproxy hands out magic tokens: signed tokens that carry an encrypted
upstream API credential together with the requests they may be used for.
Requests made through the proxy with a magic token are checked against those
grants and forwarded upstream with the real credential.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		logging.Init(nil)
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Configuration file, JSON or YAML (default is $CONFIG_FILE or ./config.{json,yaml})")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(logging.LevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = viper.BindPFlag(logging.FormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(logging.NoColorKey, rootCmd.PersistentFlags().Lookup("no-color"))

	f.bindServerFlag(rootCmd.PersistentFlags())

	config.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("MAGICPROXY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() (string, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	// reads in config file and ENV variables if set.
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}
