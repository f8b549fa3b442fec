package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// nodeStatus mirrors internal/server.StatusResponse without importing the
// daemon's internal package from a cmd binary.
type nodeStatus struct {
	Addr             string `json:"addr"`
	Sink             bool   `json:"sink"`
	QueueLength      int    `json:"queue_length"`
	RoutingTableSize int    `json:"routing_table_size"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a gobcp node's current queue and routing table state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := fetchStatus(cmd.Context())
			if err != nil {
				return err
			}

			out, err := formatStatus(status, outputFormat)
			if err != nil {
				return fmt.Errorf("format status: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a gobcp node's status endpoint until interrupted",
		Long:  "Repeatedly fetches /status and prints each snapshot until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				status, err := fetchStatus(ctx)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				} else {
					out, fmtErr := formatStatus(status, outputFormat)
					if fmtErr != nil {
						return fmt.Errorf("format status: %w", fmtErr)
					}
					fmt.Print(out)
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval")

	return cmd
}

// fetchStatus issues a GET /status request against serverAddr and decodes
// the JSON response into a nodeStatus.
func fetchStatus(ctx context.Context) (nodeStatus, error) {
	url := "http://" + serverAddr + "/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nodeStatus{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nodeStatus{}, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nodeStatus{}, fmt.Errorf("get status: unexpected HTTP status %d", resp.StatusCode)
	}

	var status nodeStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nodeStatus{}, fmt.Errorf("decode status response: %w", err)
	}

	return status, nil
}
