package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nuzumhq/fleet_backend/models"
)

// fakeSink keeps uploads in memory and can be told to fail the first N
// attempts, mirroring an offline bucket.
type fakeSink struct {
	mu        sync.Mutex
	objects   map[string][]string
	failFirst int
	attempts  int
}

func newFakeSink() *fakeSink {
	return &fakeSink{objects: map[string][]string{}}
}

func (s *fakeSink) Upload(ctx context.Context, folder string, artifacts []Artifact) (*ArchiveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failFirst {
		return nil, errors.New("sink offline")
	}
	links := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		name := folder + "/" + a.LogicalName
		s.objects[folder] = append(s.objects[folder], name)
		links[a.LogicalName] = name
	}
	return &ArchiveResult{FolderId: folder, Links: links}, nil
}

func (s *fakeSink) FolderExists(ctx context.Context, folder string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects[folder]) > 0, nil
}

func TestArchiveFolderName(t *testing.T) {
	vehicle := &models.Vehicle{PlateNumber: "ABC-123"}
	at := time.Date(2025, 6, 1, 14, 30, 5, 0, time.UTC)

	folder := ArchiveFolderName(vehicle, models.OperationTypeHandover, at)
	if folder != "ABC-123/تسليم واستلام/2025-06-01_14-30-05" {
		t.Fatalf("unexpected folder name %q", folder)
	}

	// slashes in the plate must not create extra path segments
	vehicle.PlateNumber = "AB/123"
	folder = ArchiveFolderName(vehicle, models.OperationTypeRental, at)
	if strings.Count(folder, "/") != 2 {
		t.Fatalf("plate slash leaked into path: %q", folder)
	}
}

func TestResolveFolderCollision(t *testing.T) {
	sink := newFakeSink()
	ctx := context.Background()

	folder, err := ResolveFolderCollision(ctx, sink, "p/l/t", "")
	if err != nil || folder != "p/l/t" {
		t.Fatalf("free folder should pass through, got %q %v", folder, err)
	}

	if _, err := sink.Upload(ctx, "p/l/t", []Artifact{{LogicalName: "a"}}); err != nil {
		t.Fatal(err)
	}
	folder, err = ResolveFolderCollision(ctx, sink, "p/l/t", "")
	if err != nil || folder != "p/l/t_1" {
		t.Fatalf("expected _1 suffix, got %q %v", folder, err)
	}

	if _, err := sink.Upload(ctx, "p/l/t_1", []Artifact{{LogicalName: "a"}}); err != nil {
		t.Fatal(err)
	}
	folder, err = ResolveFolderCollision(ctx, sink, "p/l/t", "")
	if err != nil || folder != "p/l/t_2" {
		t.Fatalf("expected _2 suffix, got %q %v", folder, err)
	}

	// a request retrying its own partial upload reuses its folder
	folder, err = ResolveFolderCollision(ctx, sink, "p/l/t", "p/l/t")
	if err != nil || folder != "p/l/t" {
		t.Fatalf("own folder must never collide, got %q %v", folder, err)
	}
}

func TestBackoffSchedule(t *testing.T) {
	d := NewArchiveDispatcher(nil, nil, newFakeSink())

	expected := []time.Duration{
		2 * time.Minute,
		4 * time.Minute,
		8 * time.Minute,
		16 * time.Minute,
		30 * time.Minute,
	}
	var total time.Duration
	for attempt := 1; attempt <= d.MaxAttempts-1; attempt++ {
		got := d.backoffFor(attempt)
		if got != expected[attempt-1] {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, expected[attempt-1], got)
		}
		total += got
	}
	// six attempts give up after roughly an hour
	if total < 45*time.Minute || total > 90*time.Minute {
		t.Fatalf("backoff schedule should span about an hour, got %v", total)
	}
	if d.backoffFor(20) != 30*time.Minute {
		t.Fatalf("backoff must stay capped, got %v", d.backoffFor(20))
	}
}

func TestFakeSinkRecoversAfterOutage(t *testing.T) {
	sink := newFakeSink()
	sink.failFirst = 2
	ctx := context.Background()
	artifacts := []Artifact{{LogicalName: "summary.xlsx"}, {LogicalName: "request.json"}}

	if _, err := sink.Upload(ctx, "f", artifacts); err == nil {
		t.Fatal("first attempt should fail")
	}
	if _, err := sink.Upload(ctx, "f", artifacts); err == nil {
		t.Fatal("second attempt should fail")
	}
	result, err := sink.Upload(ctx, "f", artifacts)
	if err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if result.FolderId != "f" || len(result.Links) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestWithThumbnails(t *testing.T) {
	base := []Artifact{{LogicalName: "request.json", ContentType: "application/json"}}
	photos := []Artifact{
		{LogicalName: "damage.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
	}
	out := WithThumbnails(base, photos)
	// a non-image gets no thumbnail
	if len(out) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(out))
	}

	// invalid image bytes produce no thumbnail either
	out = WithThumbnails(base[:1], []Artifact{
		{LogicalName: "broken.png", ContentType: "image/png", Data: []byte("not a png")},
	})
	for _, a := range out {
		if strings.HasPrefix(a.LogicalName, "thumb_") {
			t.Fatalf("unexpected thumbnail for broken image: %q", a.LogicalName)
		}
	}
}
