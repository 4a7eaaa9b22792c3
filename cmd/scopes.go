package cmd

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/internal/core"
)

var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "Inspect the scopes configured on the proxy",
}

var scopesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured scopes and extension modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := f.GetLocalService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeAndLog(local, "local service")

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Scope", "Kind", "Grants", "Source"})

		for _, scope := range local.Engine.Registry().Scopes() {
			t.AppendRow(table.Row{
				scope.Name,
				scope.Kind.String(),
				describeScope(scope),
				scope.Source,
			})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func describeScope(scope core.Scope) string {
	if scope.Kind == core.ExtensionScope {
		var hooks []string
		if scope.Matcher != nil {
			hooks = append(hooks, "is_request_allowed")
		}
		if scope.Observer != nil {
			hooks = append(hooks, "response_callback")
		}
		desc := strings.Join(hooks, ", ")
		if scope.Description != "" {
			desc = truncate(scope.Description, 60) + "\n" + faint(desc)
		}
		return desc
	}

	lines := make([]string, 0, len(scope.Permissions))
	for _, p := range scope.Permissions {
		lines = append(lines, p.String())
	}
	return strings.Join(lines, "\n")
}

func init() {
	rootCmd.AddCommand(scopesCmd)
	scopesCmd.AddCommand(scopesListCmd)
}
