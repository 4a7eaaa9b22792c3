package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/google/magic-github-proxy/internal/api"
	"github.com/google/magic-github-proxy/internal/buildinfo"
	"github.com/google/magic-github-proxy/internal/config"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information about the magicproxy installation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !f.Remote() {
			return infoLocally(cmd, args)
		}
		return infoRemote(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func infoRemote(cmd *cobra.Command, _ []string) error {
	cli, err := f.GetClient()
	if err != nil {
		return err
	}
	log.Info().Msg("Fetching build info from server...")
	info, correlation, err := cli.Info(cmd.Context())
	if err != nil {
		return logError(err, correlation, "failed to get info from server")
	}
	printInfo(info)
	return nil
}

func infoLocally(_ *cobra.Command, _ []string) error {
	log.Info().Msg("Showing local build info...")
	printInfo(&api.InfoResponse{
		Info:    buildinfo.GetBuildInfo(),
		APIRoot: viper.GetString(config.APIRootKey),
	})
	return nil
}

func printInfo(info *api.InfoResponse) {
	fmt.Println(bold("\n── magicproxy Build Information ──"))
	fmt.Printf("  %s:    %s\n", faint("Version"), info.Version)
	fmt.Printf("  %s:     %s\n", faint("Commit"), info.CommitHash)
	fmt.Printf("  %s:   %s\n", faint("API root"), info.APIRoot)
}
