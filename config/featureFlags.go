package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// OperationEventsTopic names the Pub/Sub topic for terminal operation events.
// Empty disables publishing.
//
// Set via env:
// - OPERATION_EVENTS_TOPIC=operation-events
func OperationEventsTopic() string {
	return strings.TrimSpace(os.Getenv("OPERATION_EVENTS_TOPIC"))
}

// ArchiveDirectProcessing controls whether the archive dispatcher runs inside
// the host process. Default: on. The standalone archive-worker binary sets it
// implicitly.
//
// Set via env:
// - ARCHIVE_DIRECT_PROCESSING=false
func ArchiveDirectProcessing() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ARCHIVE_DIRECT_PROCESSING")))
	if v == "false" {
		return false
	}
	return true
}

// OperationDeadline is the soft deadline for each public workflow operation.
// Exceeding it rolls back the transaction and surfaces Timeout.
//
// Set via env:
// - OPERATION_DEADLINE_SECONDS=10
func OperationDeadline() time.Duration {
	v := strings.TrimSpace(os.Getenv("OPERATION_DEADLINE_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}
