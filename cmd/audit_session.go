package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/internal/api/middleware"
	"github.com/google/magic-github-proxy/internal/cliconfig"
)

var (
	auditSessionTTL     time.Duration
	auditSessionSubject string
	auditSessionSave    bool
)

var auditSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Issue an admin session token for the audit API",
	Long: `Signs an admin session token with admin.signing_key from the local
configuration. Export it as MAGICPROXY_ADMIN_TOKEN for the other audit commands,
or pass --save to store it for the proxy given by --server.`,
	Example: `  export MAGICPROXY_ADMIN_TOKEN=$(magicproxy audit session --ttl 1h)
  magicproxy audit session --save --server https://proxy.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Admin.SigningKey == "" {
			return fmt.Errorf("admin.signing_key is not configured")
		}

		subject := auditSessionSubject
		if subject == "" {
			subject = os.Getenv("USER")
		}

		token, err := middleware.IssueAdminToken([]byte(cfg.Admin.SigningKey), subject, auditSessionTTL)
		if err != nil {
			return fmt.Errorf("signing session token: %w", err)
		}

		if !auditSessionSave {
			fmt.Println(token)
			return nil
		}

		server := f.serverAddr()
		if server == "" {
			return fmt.Errorf("--save requires --server or MAGICPROXY_SERVER")
		}
		cliCfg, err := cliconfig.Load()
		if err != nil {
			return err
		}
		if err := cliCfg.SetCredential(server, token); err != nil {
			return err
		}
		if err := cliconfig.Save(cliCfg); err != nil {
			return err
		}
		fmt.Printf("Session for %s saved (expires in %s)\n", bold(server), auditSessionTTL)
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditSessionCmd)

	auditSessionCmd.Flags().DurationVar(&auditSessionTTL, "ttl", time.Hour, "Validity of the session token")
	auditSessionCmd.Flags().StringVar(&auditSessionSubject, "subject", "", "Subject of the session token (default $USER)")
	auditSessionCmd.Flags().BoolVar(&auditSessionSave, "save", false, "Save the token for the configured server instead of printing it")
}
