package models_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/workflow"
	"github.com/sirupsen/logrus"
)

// outageSink fails every upload while failing is set, then stores uploads in
// memory. Folder keys persist across the outage so retried jobs reuse them.
type outageSink struct {
	mu      sync.Mutex
	failing bool
	folders map[string]bool
}

func newOutageSink() *outageSink {
	return &outageSink{folders: make(map[string]bool)}
}

func (s *outageSink) Upload(ctx context.Context, folder string, artifacts []workflow.Artifact) (*workflow.ArchiveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("sink offline")
	}
	s.folders[folder] = true
	links := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		links[a.LogicalName] = "memory://" + folder + "/" + a.LogicalName
	}
	return &workflow.ArchiveResult{FolderId: folder, Links: links}, nil
}

func (s *outageSink) FolderExists(ctx context.Context, folder string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders[folder], nil
}

// Regression: an approved request must always end with an archive result or
// an entry on the archive issues list. A sink outage drives the job to DEAD
// on the issues list; requeueing after the outage uploads and stamps the
// request's folder and links.
func TestApprovedRequestArchiveJobLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	startOperationsStack(t)
	ctx := context.Background()

	admin, staff := seedReviewPair(t, ctx)
	adminCtx := reviewerContext(ctx, admin)
	staffCtx := requesterContext(ctx, staff)

	vehicle, err := models.CreateVehicle(staffCtx, &models.NewVehicle{PlateNumber: "ARC-200"})
	if err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	proposed, err := workflow.ProposeWorkshopEntry(staffCtx, &models.NewWorkshopRecord{
		VehicleId: vehicle.ID,
		EntryDate: time.Now(),
		Reason:    models.WorkshopReasonMaintenance,
	}, &workflow.ProposeMeta{Title: "دخول الورشة للصيانة"})
	if err != nil {
		t.Fatalf("ProposeWorkshopEntry: %v", err)
	}
	if _, err := workflow.ApproveRequest(adminCtx, proposed.RequestId, ""); err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}

	db := config.GetDB()
	var job models.ArchiveJob
	if err := db.Where("request_id = ?", proposed.RequestId).First(&job).Error; err != nil {
		t.Fatalf("expected an archive job committed with the approval: %v", err)
	}
	if job.Status != models.ArchiveJobStatusPending {
		t.Fatalf("expected PENDING job, got %s", job.Status)
	}

	sink := newOutageSink()
	sink.failing = true
	d := workflow.NewArchiveDispatcher(db, logrus.New(), sink)
	d.MaxAttempts = 2
	d.InitialBackoff = time.Millisecond

	// attempt 1: FAILED with a short retry delay
	d.DispatchOnce(ctx)
	if err := db.Where("id = ?", job.ID).First(&job).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != models.ArchiveJobStatusFailed {
		t.Fatalf("expected FAILED after first attempt, got %s", job.Status)
	}

	// attempt 2 exhausts MaxAttempts: DEAD, on the issues list
	time.Sleep(50 * time.Millisecond)
	d.DispatchOnce(ctx)
	if err := db.Where("id = ?", job.ID).First(&job).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != models.ArchiveJobStatusDead {
		t.Fatalf("expected DEAD after exhausting attempts, got %s", job.Status)
	}

	issues, err := models.ListArchiveIssues(adminCtx, 10)
	if err != nil {
		t.Fatalf("ListArchiveIssues: %v", err)
	}
	found := false
	for _, issue := range issues {
		if issue.RequestId == proposed.RequestId {
			found = true
		}
	}
	if !found {
		t.Fatalf("DEAD job missing from the archive issues list: %+v", issues)
	}

	// the outage ends; requeue and run one more round
	sink.mu.Lock()
	sink.failing = false
	sink.mu.Unlock()
	requeued, err := workflow.RequeueDeadArchiveJobs(ctx, db, []int{proposed.RequestId})
	if err != nil || requeued != 1 {
		t.Fatalf("RequeueDeadArchiveJobs: requeued=%d err=%v", requeued, err)
	}
	d.DispatchOnce(ctx)

	if err := db.Where("id = ?", job.ID).First(&job).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != models.ArchiveJobStatusSucceeded {
		t.Fatalf("expected SUCCEEDED after the outage, got %s", job.Status)
	}

	request, err := workflow.GetOperationRequest(adminCtx, proposed.RequestId)
	if err != nil {
		t.Fatalf("GetOperationRequest: %v", err)
	}
	if request.ArchiveFolder == "" {
		t.Fatalf("expected a recorded archive folder on the request")
	}
	if request.ArchiveLinks == "" || !strings.Contains(request.ArchiveLinks, request.ArchiveFolder) {
		t.Fatalf("expected archive links for the uploaded artifacts, got %q", request.ArchiveLinks)
	}
}
