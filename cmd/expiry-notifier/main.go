// expiry-notifier runs the daily vehicle-document expiry sweep: every
// document expiring inside the window produces one in-app notification per
// admin. The unique notification tuple makes repeated runs no-ops.
//
// Usage (cron, daily):
//
//	DOCUMENT_EXPIRY_WINDOW_DAYS=30 go run ./cmd/expiry-notifier
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/utils"
	"github.com/nuzumhq/fleet_backend/workflow"
)

func main() {
	windowDays := 30
	if v := os.Getenv("DOCUMENT_EXPIRY_WINDOW_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "invalid DOCUMENT_EXPIRY_WINDOW_DAYS %q\n", v)
			os.Exit(1)
		}
		windowDays = n
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "expiry-notifier")
	ctx = utils.SetIsAdminInContext(ctx, true)

	count, err := workflow.NotifyDocumentExpiry(ctx, time.Duration(windowDays)*24*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "expiry sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("expiry sweep done, %d notification(s) written\n", count)
}
