package cmd

import (
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/pkg/client"
)

var auditLogOpts client.ListAuditsOpts

// auditLogCmd represents the audit log command
var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Retrieve and display audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching audit log...")
		audits, correlation, err := cli.ListAudits(cmd.Context(), auditLogOpts)
		if err != nil {
			return logError(err, correlation, "failed to retrieve audit log")
		}

		log.Info().Msgf("Retrieved %d audit entries", len(audits))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"Time", "Correlation ID", "Action", "Request", "Success", "Upstream", "Error",
		})

		for _, e := range audits {
			status := green("YES")
			if !e.Success {
				status = red("NO")
			}

			request := ""
			if e.Method != "" {
				request = e.Method + " " + truncate(e.Path, 40)
			}

			upstream := ""
			if e.UpstreamStatus != 0 {
				upstream = strconv.Itoa(e.UpstreamStatus)
			}

			t.AppendRow(table.Row{
				e.Time.Format(time.RFC3339),
				e.ID,
				e.Action,
				request,
				status,
				upstream,
				e.Error,
			})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().UintVarP(&auditLogOpts.Limit, "limit", "n", 25, "Number of audit entries to retrieve")
	auditLogCmd.Flags().StringVar(&auditLogOpts.Action, "action", "", "Only show entries for this action (token.create, proxy.request)")
	auditLogCmd.Flags().StringVar(&auditLogOpts.Fingerprint, "fingerprint", "", "Only show entries for this magic token fingerprint")
	auditLogCmd.Flags().StringVar(&auditLogOpts.CorrelationID, "correlation-id", "", "Only show entries for this correlation id")
}
