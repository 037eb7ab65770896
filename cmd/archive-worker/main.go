// archive-worker drains the archive job queue: builds the artifacts for each
// approved request and uploads them to the configured sink. Safe to run in
// multiple replicas; a redis leader lock keeps the poll loop on one instance
// when redis is configured, and the SKIP LOCKED claim keeps concurrent
// replicas correct either way.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	GCS_BUCKET=... go run ./cmd/archive-worker
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/workflow"
	"github.com/sirupsen/logrus"
)

const leaderLockKey = "nuzum:archive-worker:leader"

func main() {
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := workflow.NewArchiveDispatcher(config.GetDB(), logger, workflow.SinkFromConfig())

	locker := config.GetRedisLock()
	if locker == nil {
		logger.Info("archive-worker running without leader election")
		dispatcher.Run(ctx)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lock, err := locker.Obtain(ctx, leaderLockKey, 30*time.Second, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(5 * time.Second),
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("could not obtain archive leader lock, retrying")
			continue
		}
		logger.Info("archive-worker became leader")

		runAsLeader(ctx, dispatcher, lock, logger)
		_ = lock.Release(context.Background())
	}
}

// runAsLeader polls until the context ends or the lock is lost.
func runAsLeader(ctx context.Context, dispatcher *workflow.ArchiveDispatcher, lock *redislock.Lock, logger *logrus.Logger) {
	refresh := time.NewTicker(10 * time.Second)
	defer refresh.Stop()
	poll := time.NewTicker(dispatcher.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			if err := lock.Refresh(ctx, 30*time.Second, nil); err != nil {
				logger.Info("archive leader lock lost, stepping down")
				return
			}
		case <-poll.C:
			dispatcher.DispatchOnce(ctx)
		}
	}
}
