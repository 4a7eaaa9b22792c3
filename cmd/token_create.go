package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/pkg/client"
)

var (
	tokenCreateCredential string
	tokenCreateScopes     []string
	tokenCreateAllowed    []string
)

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a magic token for an upstream credential",
	Long: `Creates a magic token that carries the upstream credential and either the
names of scopes configured on the proxy or an explicit list of allowed requests.

Without --server the token is created with the local keys and configuration.`,
	Example: `  # Scope the token to a configured scope
  magicproxy token create --credential ghp_123... --scope user:read

  # Spell out the allowed requests, read the credential from stdin
  echo "ghp_123..." | magicproxy token create --credential - \
    --allow "GET /repos/octocat/hello-world/.*"

  # Ask a running proxy
  magicproxy --server https://proxy.example.com token create --credential - --scope user:read`,
	RunE: func(cmd *cobra.Command, args []string) error {
		credential, err := readSecret(tokenCreateCredential)
		if err != nil {
			return err
		}

		params := client.CreateTokenRequest{
			Token:   credential,
			Scopes:  tokenCreateScopes,
			Allowed: tokenCreateAllowed,
		}

		var token string
		if f.Remote() {
			token, err = createTokenRemote(cmd.Context(), params)
		} else {
			token, err = createTokenLocally(cmd.Context(), params)
		}
		if err != nil {
			return err
		}

		fmt.Println(token)
		return nil
	},
}

func createTokenRemote(ctx context.Context, params client.CreateTokenRequest) (string, error) {
	cli, err := f.GetClient()
	if err != nil {
		return "", err
	}
	log.Debug().Msg("Requesting magic token from server...")
	token, correlation, err := cli.CreateToken(ctx, params)
	if err != nil {
		return "", logError(err, correlation, "failed to create magic token")
	}
	return token, nil
}

func createTokenLocally(ctx context.Context, params client.CreateTokenRequest) (string, error) {
	local, err := f.GetLocalService(ctx)
	if err != nil {
		return "", err
	}
	defer closeAndLog(local, "local service")

	// same shape the server receives
	raw := map[string]any{"token": params.Token}
	if params.Scopes != nil {
		raw["scopes"] = toAnySlice(params.Scopes)
	}
	if params.Allowed != nil {
		raw["allowed"] = toAnySlice(params.Allowed)
	}
	return local.CreateToken(ctx, raw)
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func init() {
	tokenCmd.AddCommand(tokenCreateCmd)

	tokenCreateCmd.Flags().StringVar(&tokenCreateCredential, "credential", "",
		"Upstream credential, - reads it from stdin")
	tokenCreateCmd.Flags().StringSliceVarP(&tokenCreateScopes, "scope", "s", nil,
		"Scope configured on the proxy (repeatable)")
	tokenCreateCmd.Flags().StringArrayVarP(&tokenCreateAllowed, "allow", "a", nil,
		`Allowed request as "METHOD path_regex" (repeatable)`)

	_ = tokenCreateCmd.MarkFlagRequired("credential")
	tokenCreateCmd.MarkFlagsMutuallyExclusive("scope", "allow")
}
