// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/phobos/authd/internal/config"
)

const statusTimeout = 2 * time.Second

// ProcessStatus holds the status information for a running authd.
type ProcessStatus struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Ready   bool   `json:"ready"`
	Health  string `json:"health,omitempty"`
	Error   string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running authd",
		Long: `Query the liveness and readiness health endpoints of a running authd
on its metrics-addr and report whether it is running and ready.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	// status only needs metrics_addr, so the config is not validated.
	appCfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if appCfg.MetricsAddr == "" {
		return fmt.Errorf("metrics-addr is disabled; nothing to query")
	}

	client := &http.Client{Timeout: statusTimeout}
	status := queryStatus(cmd.Context(), client, "http://"+appCfg.MetricsAddr)

	if cfg.jsonOutput {
		output, err := formatStatusJSON(status)
		if err != nil {
			return err
		}
		cmd.Println(output)
		return nil
	}
	cmd.Print(formatStatusTable(status))
	return nil
}

// queryStatus fetches the liveness and readiness endpoints under baseURL.
func queryStatus(ctx context.Context, client *http.Client, baseURL string) ProcessStatus {
	status := ProcessStatus{Addr: strings.TrimPrefix(baseURL, "http://")}

	code, body, err := fetch(ctx, client, baseURL+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	if code != http.StatusOK {
		status.Error = fmt.Sprintf("liveness returned %d", code)
		return status
	}
	status.Running = true
	status.Health = body

	code, body, err = fetch(ctx, client, baseURL+"/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("readiness check failed: %v", err)
		return status
	}
	status.Ready = code == http.StatusOK
	status.Health = body
	return status
}

func fetch(ctx context.Context, client *http.Client, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ProcessStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tSTATUS\tREADY\tHEALTH")
	_, _ = fmt.Fprintln(w, "----\t------\t-----\t------")
	if status.Running {
		_, _ = fmt.Fprintf(w, "%s\trunning\t%t\t%s\n", status.Addr, status.Ready, status.Health)
	} else {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t%s\n", status.Addr, reason)
	}

	_ = w.Flush()
	return sb.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}
