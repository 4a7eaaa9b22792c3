package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/internal/keys"
)

var keysForce bool

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the key pair magic tokens are signed and encrypted with",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair and self-signed certificate",
	Long: `Generates an RSA key pair and a self-signed certificate at the configured
locations. The certificate's common name is the host of public_access.

Replacing the keys invalidates every magic token handed out so far.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if !keysForce {
			for _, path := range []string{cfg.PrivateKeyLocation, cfg.PublicCertificateLocation} {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists, use --force to replace it", path)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
		}

		paths := keys.Paths{
			PrivateKey:  cfg.PrivateKeyLocation,
			PublicKey:   cfg.PublicKeyLocation,
			Certificate: cfg.PublicCertificateLocation,
		}
		if err := keys.Generate(paths, cfg.PublicAccess); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		k, err := keys.Load(paths.PrivateKey, paths.Certificate)
		if err != nil {
			return fmt.Errorf("loading generated keys: %w", err)
		}

		log.Info().
			Str("private_key", paths.PrivateKey).
			Str("certificate", paths.Certificate).
			Str("kid", k.KeyID()).
			Msg("Generated keys")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)

	keysGenerateCmd.Flags().BoolVar(&keysForce, "force", false, "Replace existing keys")
}
