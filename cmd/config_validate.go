package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/google/magic-github-proxy/internal/store"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and extension modules",
	Long: `Validates the configuration, including scopes, and compiles every extension
module in plugins_location. Keys are not required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			log.Error().Err(err).Msg("Configuration is invalid.")
			return err
		}

		registry, err := f.BuildRegistry(cfg, store.NewInMemoryStateStore())
		if err != nil {
			log.Error().Err(err).Msg("Scopes are invalid.")
			return fmt.Errorf("building scope registry: %w", err)
		}

		log.Info().
			Str("file", viper.ConfigFileUsed()).
			Int("scopes", registry.Len()).
			Msg("Configuration is valid.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
