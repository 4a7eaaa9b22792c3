package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/internal/audit"
)

var (
	fingerprintType string
	fingerprintRaw  bool
)

var fingerprintCmd = &cobra.Command{
	Use:     "fingerprint [token]",
	Aliases: []string{"fp"},
	Short:   `Calculate the fingerprint of a token`,
	Long: `Calculates the fingerprint of a token as it appears in the audit log.
Magic tokens are stored in 'token_fingerprint', upstream credentials in
'credential_fingerprint'.

Fingerprint types:
- default:    (no fingerprint)
- github:     SHA256 -> Base64 (Matches GitHub Audit Log)
- magictoken: (same as github)`,
	Example: `  # Calculate the fingerprint of an upstream credential
  magicproxy fingerprint --type github ghp_123456...

  # Calculate the fingerprint of a magic token from stdin
  echo "eyJ..." | magicproxy fingerprint --type magictoken -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readSecret(args[0])
		if err != nil {
			return err
		}
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		fp := audit.CalculateFingerprint(fingerprintType, token)

		if fingerprintRaw {
			fmt.Println(fp)
		} else {
			fmt.Println("Fingerprint Type:", fingerprintType)
			fmt.Println("Fingerprint:     ", fp)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().StringVar(&fingerprintType, "type", audit.MagicTokenFingerprintType,
		fmt.Sprintf("Fingerprint type (one of: %s)", strings.Join(audit.RegisteredFingerprinterTypes(), ", ")))
	fingerprintCmd.Flags().BoolVarP(&fingerprintRaw, "raw", "r", false,
		"Output only the fingerprint value without additional text")
}
