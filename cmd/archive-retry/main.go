// archive-retry requeues DEAD archive jobs after an operator fixed the
// underlying problem (bucket permissions, credentials, quota).
//
// Usage:
//
//	go run ./cmd/archive-retry                 # list archive issues
//	go run ./cmd/archive-retry -requeue        # requeue all DEAD jobs
//	go run ./cmd/archive-retry -requeue -request 42,57
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"github.com/nuzumhq/fleet_backend/workflow"
)

func main() {
	requeue := flag.Bool("requeue", false, "requeue DEAD jobs instead of listing issues")
	requestList := flag.String("request", "", "comma separated request ids to requeue (default: all DEAD)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}
	ctx := context.Background()

	if !*requeue {
		jobs, err := models.ListArchiveIssues(ctx, 200)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list archive issues: %v\n", err)
			os.Exit(1)
		}
		if len(jobs) == 0 {
			fmt.Println("no archive issues")
			return
		}
		for _, job := range jobs {
			fmt.Printf("job=%d request=%d vehicle=%d status=%s attempts=%d last_error=%s\n",
				job.ID, job.RequestId, job.VehicleId, job.Status, job.Attempts,
				utils.DereferencePtr(job.LastError))
		}
		return
	}

	var requestIds []int
	if *requestList != "" {
		for _, part := range strings.Split(*requestList, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid request id %q\n", part)
				os.Exit(1)
			}
			requestIds = append(requestIds, id)
		}
	}

	n, err := workflow.RequeueDeadArchiveJobs(ctx, db, requestIds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "requeue failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("requeued %d archive job(s)\n", n)
}
