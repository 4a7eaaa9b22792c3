package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/service"
)

var whyToken string

var whyCmd = &cobra.Command{
	Use:   "why METHOD PATH",
	Short: "Explain why a magic token is allowed (or denied) a request",
	Long: `Evaluates a request against the grants of a magic token and prints a trace
of every scope and allowed entry that was looked at.

Without --server the token is checked with the local keys and configuration.`,
	Example: `  # Why is my token denied?
  magicproxy why --token <magic-token> DELETE /repos/octocat/hello-world

  # Ask the running proxy, which may have other scopes loaded
  magicproxy --server https://proxy.example.com why --token - GET /user`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readSecret(whyToken)
		if err != nil {
			return err
		}
		req := service.ExplainRequest{
			Method: strings.ToUpper(args[0]),
			Path:   args[1],
		}

		var resp *service.ExplainResponse
		if f.Remote() {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			var correlation string
			resp, correlation, err = cli.Explain(cmd.Context(), token, req)
			if err != nil {
				return logError(err, correlation, "failed to explain request")
			}
		} else {
			local, err := f.GetLocalService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAndLog(local, "local service")

			resp, err = local.Explain(cmd.Context(), "Bearer "+token, req)
			if err != nil {
				return err
			}
		}

		printTrace(resp)
		return nil
	},
}

func printTrace(resp *service.ExplainResponse) {
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	trace := resp.Trace

	fmt.Printf("\n%s for %s %s\n", bold("Evaluation Trace"), bold(trace.Method), bold(trace.Path))
	if len(resp.Scopes) > 0 {
		fmt.Printf("%s %s\n", faint("Scopes: "), strings.Join(resp.Scopes, ", "))
	}
	if len(resp.Allowed) > 0 {
		fmt.Printf("%s %s\n", faint("Allowed:"), strings.Join(resp.Allowed, ", "))
	}

	fmt.Println(faint("---------------------------------------------------"))

	if len(trace.Steps) == 0 {
		fmt.Printf("  %s\n", yellow("the token grants nothing"))
	}
	for _, step := range trace.Steps {
		icon := red("✖")
		if step.Matched {
			icon = green("✔")
		}

		label := step.Source
		if step.Kind != "" {
			label += " " + cyan("["+step.Kind+"]")
		}
		fmt.Printf("%s %s: %s\n", icon, label, bold(step.Name))

		if step.Reason != "" {
			reason := step.Reason
			if step.Matched {
				reason = faint(reason)
			} else {
				reason = yellow(reason)
			}
			fmt.Printf("    ↳ %s\n", reason)
		}
	}

	fmt.Println("---------------------------------------------------")
	printDecision(trace)
	fmt.Println()
}

func printDecision(trace core.EvaluationTrace) {
	switch {
	case trace.FinalDecision:
		fmt.Printf("Decision: %s via '%s'\n", bold(green("allowed")), bold(trace.DecidedBy))
	case trace.DecidedBy != "":
		fmt.Printf("Decision: %s by '%s'\n", bold(red("denied")), bold(trace.DecidedBy))
	default:
		fmt.Printf("Decision: %s\n", bold(red("denied")))
	}
}

func init() {
	rootCmd.AddCommand(whyCmd)

	whyCmd.Flags().StringVarP(&whyToken, "token", "t", "", "Magic token to explain, - reads it from stdin")
	_ = whyCmd.MarkFlagRequired("token")
}
