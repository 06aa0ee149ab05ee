package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/ledger"
)

var (
	ledgerPath  string
	tailCount   int
	tailGrantID int64
	tailJSON    bool
)

func init() {
	ledgerCmd.PersistentFlags().StringVar(&ledgerPath, "path", "", "Ledger database (defaults to ledger.path)")
	ledgerTailCmd.Flags().IntVarP(&tailCount, "lines", "n", 20, "Number of entries to show")
	ledgerTailCmd.Flags().Int64Var(&tailGrantID, "grant", 0, "Only show entries for this grant")
	ledgerTailCmd.Flags().BoolVar(&tailJSON, "json", false, "Print entries as JSON lines")
	ledgerCmd.AddCommand(ledgerTailCmd)
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the SQLite event ledger",
}

var ledgerTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent ledger entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ledgerPath
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Ledger.Path
		}
		if path == "" {
			return fmt.Errorf("no ledger configured: pass --path or set ledger.path")
		}

		led, err := ledger.Open(path)
		if err != nil {
			return err
		}
		defer led.Close()

		var entries []ledger.Entry
		if tailGrantID > 0 {
			entries, err = led.ByGrant(cmd.Context(), tailGrantID)
			if len(entries) > tailCount && tailCount > 0 {
				entries = entries[len(entries)-tailCount:]
			}
		} else {
			entries, err = led.Tail(cmd.Context(), tailCount)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, e := range entries {
			if tailJSON {
				b, err := json.Marshal(e)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				continue
			}
			fmt.Fprintf(out, "%6d  %s  %-22s %s\n", e.Seq, e.Time.Format("2006-01-02T15:04:05Z07:00"), e.Type, describe(e))
		}
		return nil
	},
}

func describe(e ledger.Entry) string {
	switch {
	case e.Type == feed.EventAgentMessage:
		return fmt.Sprintf("from=%s topic=%s", e.AgentID, e.Topic)
	case e.GrantID > 0 && e.AgentID != "":
		return fmt.Sprintf("grant=%d agent=%s", e.GrantID, e.AgentID)
	case e.GrantID > 0:
		return fmt.Sprintf("grant=%d", e.GrantID)
	case e.AgentID != "":
		return fmt.Sprintf("agent=%s", e.AgentID)
	}
	return ""
}
