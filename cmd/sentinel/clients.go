package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xoelrdgz/sentinel/internal/tui/views"
)

var clientsLogs int

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Show client profiles and recent log entries",
	Long: `Print the persisted client profiles, ordered as the dashboard shows
them, and optionally the most recent log entries.

Examples:
  sentinel clients
  sentinel clients --logs 20 --store redis`,
	RunE: runClients,
}

func init() {
	clientsCmd.Flags().IntVar(&clientsLogs, "logs", 0, "also print the N most recent log entries")
}

func runClients(cmd *cobra.Command, args []string) error {
	setupLogging(true)

	eng, err := openEngine(context.Background())
	if err != nil {
		return err
	}
	defer eng.close()

	table := views.NewClientTable(120)
	table.Update(eng.gw.Profiles())
	fmt.Println(table.Render())

	if clientsLogs > 0 {
		feed := views.NewLogFeed(clientsLogs)
		feed.Width = 120
		feed.Update(eng.gw.Logs())
		feed.SelectedIndex = -1
		fmt.Println()
		fmt.Println(feed.Render())
	}

	stats := eng.gw.Stats()
	fmt.Printf("\n%d requests, %d blocked (%.1f%%), %d banned sources\n",
		stats.TotalRequests, stats.BlockedRequests, stats.BlockRate(), stats.GlobalBans)
	return nil
}
