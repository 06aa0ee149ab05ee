package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/grantmesh/transport"
)

var (
	reapServer    string
	reapThreshold time.Duration
)

func init() {
	reapCmd.Flags().StringVar(&reapServer, "server", "http://localhost:8080", "Dispatcher base URL")
	reapCmd.Flags().DurationVar(&reapThreshold, "threshold", 0, "Idle threshold (defaults to registry.idle_threshold)")
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Remove agents that have been idle longer than the threshold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold := reapThreshold
		if threshold == 0 {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			threshold = cfg.Registry.IdleThreshold
		}

		endpoint := strings.TrimSuffix(reapServer, "/") + "/admin/reap?threshold=" + url.QueryEscape(threshold.String())
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("reap: %s", resp.Status)
		}

		var out transport.ReapResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d idle agent(s) (threshold %s)\n", out.Removed, threshold)
		return nil
	},
}
