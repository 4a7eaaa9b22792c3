package cmd

import (
	"github.com/spf13/cobra"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log of a running proxy",
	Long: `Queries the audit API of a running proxy (--server). The server needs
audit.type memory and admin.signing_key; requests are authorized with the
admin session token in MAGICPROXY_ADMIN_TOKEN, see 'audit session'.`,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
