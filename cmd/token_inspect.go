package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/internal/audit"
)

var tokenInspectClaims bool

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect TOKEN",
	Short: "Verify a magic token with the local keys and show its grants",
	Long: `Verifies the signature and expiry of a magic token with the local keys and
shows what it grants. The upstream credential is never printed, only its fingerprint.
With --claims the raw claims are dumped as well; the sealed credential stays encrypted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readSecret(args[0])
		if err != nil {
			return err
		}
		raw = strings.TrimPrefix(raw, "Bearer ")

		local, err := f.GetLocalService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeAndLog(local, "local service")

		decoded, err := local.Codec.Decode(raw)
		if err != nil {
			return fmt.Errorf("token rejected: %w", err)
		}

		printKV := func(key string, val any) {
			fmt.Printf("  %-24s %v\n", faint(key)+":", val)
		}

		fmt.Println(bold("\n── Magic Token ──"))
		printKV("Fingerprint", audit.CalculateFingerprint(audit.MagicTokenFingerprintType, raw))
		printKV("Credential", audit.CalculateFingerprint(audit.GitHubFingerprintType, decoded.UpstreamCredential))
		printKV("Issued", decoded.IssuedAt.Local().Format(time.RFC1123))
		printKV("Expires", decoded.ExpiresAt.Local().Format(time.RFC1123))

		fmt.Println(bold("\n── Grants ──"))
		if len(decoded.Scopes) > 0 {
			for _, name := range decoded.Scopes {
				status := green("configured")
				if !local.Engine.Registry().Has(name) {
					status = red("unknown to this proxy")
				}
				fmt.Printf("  scope   %s (%s)\n", bold(name), status)
			}
		}
		for _, entry := range decoded.Allowed {
			fmt.Printf("  allowed %s\n", entry)
		}
		if len(decoded.Grants()) == 0 {
			fmt.Printf("  %s\n", faint("(none)"))
		}

		if tokenInspectClaims {
			// signature was verified by Decode above
			token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
			if err != nil {
				return fmt.Errorf("parsing claims: %w", err)
			}
			claims := token.Claims.(jwt.MapClaims)
			if sealed, ok := claims["token"].(string); ok {
				claims["token"] = truncate(sealed, 24)
			}
			fmt.Println(bold("\n── Claims ──"))
			fmt.Print(spew.Sdump(token.Header, claims))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenInspectCmd)

	tokenInspectCmd.Flags().BoolVar(&tokenInspectClaims, "claims", false, "Dump the header and raw claims of the token")
}
