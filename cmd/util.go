package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/pkg/client"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

// logError logs a failed remote call together with its correlation id and returns err.
func logError(err error, correlation, msg string) error {
	event := log.Error().Err(err)
	if correlation != "" {
		event = event.Str("correlation_id", correlation)
	}
	var apiErr client.APIError
	if errors.As(err, &apiErr) {
		event = event.Int("status", apiErr.StatusCode)
	}
	event.Msg(msg)
	return err
}

// readSecret returns value, or the trimmed stdin when value is "-".
// Secrets passed via stdin do not end up in the shell history.
func readSecret(value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	log.Debug().Msg("Reading secret from stdin")
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
