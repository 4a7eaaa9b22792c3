package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/pkg/client"
)

var auditInspectReplay bool

var auditInspectCmd = &cobra.Command{
	Use:   "inspect CORRELATION-ID",
	Short: "Show full details of a specific audit log entry",
	Example: `  magicproxy audit inspect ctq0r2m8d3b7a1s0g7c0

  # Evaluate the audited request again with the scopes the server has now
  magicproxy audit inspect ctq0r2m8d3b7a1s0g7c0 --replay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		correlationID := args[0]
		if correlationID == "" {
			return fmt.Errorf("correlation ID cannot be empty")
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Retrieving entry with correlation ID '%s'...", correlationID)
		audits, correlation, err := cli.ListAudits(cmd.Context(), client.ListAuditsOpts{
			Limit:         1,
			CorrelationID: correlationID,
		})
		if err != nil {
			return logError(err, correlation, "failed to retrieve audit log entry")
		}
		if len(audits) == 0 {
			log.Warn().Str("correlation_id", correlationID).Msg("no audit log entries found")
			return nil
		}

		entry := audits[0]

		printKV := func(key string, val any) {
			fmt.Printf("  %-26s %v\n", faint(key)+":", val)
		}
		orNone := func(s string) string {
			if s == "" {
				return faint("(none)")
			}
			return s
		}

		status := green("granted")
		if !entry.Success {
			status = red("denied")
		}

		fmt.Println(bold("\n── Audit Entry ──"))
		printKV("Correlation ID", correlationID)
		printKV("Time", entry.Time.Local().Format(time.RFC1123))
		printKV("Action", entry.Action)
		printKV("Decision", status)

		fmt.Println(bold("\n── Tokens ──"))
		printKV("Magic Token", orNone(entry.TokenFingerprint))
		printKV("Credential", orNone(entry.CredentialFingerprint))
		printKV("Scopes", orNone(strings.Join(entry.Scopes, ", ")))
		printKV("Allowed", orNone(strings.Join(entry.Allowed, ", ")))

		fmt.Println(bold("\n── Request ──"))
		if entry.Method != "" {
			printKV("Request", entry.Method+" "+entry.Path)
		} else {
			printKV("Request", faint("(none)"))
		}
		if entry.UpstreamStatus != 0 {
			printKV("Upstream Status", entry.UpstreamStatus)
		}
		if entry.Error != "" {
			printKV("Error Message", red(entry.Error))
		}
		if entry.Detail != "" {
			printKV("Detail", entry.Detail)
		}
		fmt.Println()

		if !auditInspectReplay {
			return nil
		}
		resp, correlation, err := cli.ReplayAudit(cmd.Context(), correlationID)
		if err != nil {
			return logError(err, correlation, "failed to replay audit log entry")
		}
		printTrace(resp)
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditInspectCmd)

	auditInspectCmd.Flags().BoolVar(&auditInspectReplay, "replay", false,
		"Evaluate the request again against the current scopes")
}
