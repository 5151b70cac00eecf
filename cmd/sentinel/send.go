package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/gateway"
	"github.com/xoelrdgz/sentinel/pkg/sanitize"
)

var (
	sendUser       string
	sendAdmin      bool
	sendMethod     string
	sendEndpoint   string
	sendBody       string
	sendToken      string
	sendIssueToken bool
	sendCount      int
	sendJSON       bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Evaluate requests against the persisted gateway state",
	Long: `Send one or more simulated requests through the gateway and print the
status and log entry of each. State changes are written back to the store.

Examples:
  sentinel send --user zap --issue-token
  sentinel send --user ness --method POST --body '{"q":"1 OR 1=1"}' --count 70
  sentinel send --admin --user giygas --endpoint /api/v1/admin`,
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVarP(&sendUser, "user", "u", "zap", "identity to send as (admins may impersonate)")
	f.BoolVar(&sendAdmin, "admin", false, "open an admin session")
	f.StringVarP(&sendMethod, "method", "X", "GET", "HTTP method")
	f.StringVarP(&sendEndpoint, "endpoint", "e", "/api/v1/users/data", "request path")
	f.StringVarP(&sendBody, "body", "d", "", "request body")
	f.StringVar(&sendToken, "token", "", "bearer token to present")
	f.BoolVar(&sendIssueToken, "issue-token", false, "issue a fresh token before each request")
	f.IntVarP(&sendCount, "count", "n", 1, "number of requests to send")
	f.BoolVar(&sendJSON, "json", false, "print log entries as JSON")
}

func runSend(cmd *cobra.Command, args []string) error {
	setupLogging(true)
	if sendCount < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", sendCount)
	}

	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	session := gateway.NewSession(eng.gw, sendUser, sendAdmin)

	enc := json.NewEncoder(os.Stdout)
	for i := 0; i < sendCount; i++ {
		req := domain.NewRequestPayload(sendMethod, sendEndpoint, time.Now())
		if sendAdmin {
			req.Username = sendUser
		}
		if sendBody != "" {
			req.WithBody(sendBody)
		}
		switch {
		case sendIssueToken:
			req.WithToken(session.IssueToken())
		case sendToken != "":
			req.WithToken(sendToken)
		}

		status := session.Send(ctx, req)
		entry := latestEntry(session.Logs(), req.ID)
		if sendJSON && entry != nil {
			if err := enc.Encode(entry); err != nil {
				return err
			}
			continue
		}
		printEntry(status, entry)
	}

	eng.persister.MarkDirty()
	stats := eng.gw.Stats()
	log.Debug().
		Int64("total", stats.TotalRequests).
		Int64("blocked", stats.BlockedRequests).
		Int64("bans", stats.GlobalBans).
		Msg("Send complete")
	return nil
}

func latestEntry(entries []*domain.LogEntry, requestID string) *domain.LogEntry {
	for _, e := range entries {
		if e.RequestID == requestID {
			return e
		}
	}
	return nil
}

func printEntry(status int, entry *domain.LogEntry) {
	if entry == nil {
		fmt.Printf("%d\n", status)
		return
	}
	fmt.Printf("%d %-10s %-15s %-8s %s %s  %s\n",
		status,
		entry.ActionTaken,
		sanitize.Address(entry.ClientIP),
		sanitize.Identity(entry.Username, 12),
		entry.Method,
		sanitize.Endpoint(entry.Endpoint, 40),
		sanitize.Display(entry.Details, 120),
	)
}
