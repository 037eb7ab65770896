package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
)

// Artifact is one file handed to the archive sink.
type Artifact struct {
	LogicalName string
	ContentType string
	Data        []byte
}

// ArchiveResult records where an upload landed.
type ArchiveResult struct {
	FolderId string            `json:"folder_id"`
	Links    map[string]string `json:"links"`
}

// ArchiveSink stores the artifacts of one approved request under a folder
// key. Upload succeeds only when every artifact lands; a partial upload is
// retried from scratch into the same folder, so implementations must be
// idempotent per (folder, name).
type ArchiveSink interface {
	Upload(ctx context.Context, folder string, artifacts []Artifact) (*ArchiveResult, error)
	FolderExists(ctx context.Context, folder string) (bool, error)
}

// ArchiveFolderName builds the sink folder for an approved request:
// <plate>/<operation label>/<YYYY-MM-DD_HH-MM-SS>/
func ArchiveFolderName(vehicle *models.Vehicle, opType models.OperationType, approvedAt time.Time) string {
	return fmt.Sprintf("%s/%s/%s",
		strings.ReplaceAll(vehicle.PlateNumber, "/", "-"),
		opType.ArabicLabel(),
		approvedAt.Format("2006-01-02_15-04-05"))
}

// ResolveFolderCollision appends _<n> until the folder is free. The request's
// own folder (recorded from an earlier partial upload) never counts as a
// collision.
func ResolveFolderCollision(ctx context.Context, sink ArchiveSink, folder, ownFolder string) (string, error) {
	if ownFolder != "" {
		return ownFolder, nil
	}
	candidate := folder
	for n := 1; ; n++ {
		exists, err := sink.FolderExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", folder, n)
		if n > 50 {
			return "", fmt.Errorf("could not resolve archive folder collision for %s", folder)
		}
	}
}

// GCSArchiveSink stores artifacts in the archive bucket.
type GCSArchiveSink struct{}

func (GCSArchiveSink) Upload(ctx context.Context, folder string, artifacts []Artifact) (*ArchiveResult, error) {
	links := make(map[string]string, len(artifacts))
	for _, artifact := range artifacts {
		objectName := folder + "/" + artifact.LogicalName
		if err := utils.UploadBytesToGCS(ctx, objectName, artifact.Data, artifact.ContentType); err != nil {
			return nil, fmt.Errorf("upload %s: %w", objectName, err)
		}
		links[artifact.LogicalName] = objectName
	}
	return &ArchiveResult{FolderId: folder, Links: links}, nil
}

func (GCSArchiveSink) FolderExists(ctx context.Context, folder string) (bool, error) {
	names, err := utils.ListGCSObjectNames(ctx, folder+"/")
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// NoopArchiveSink drops artifacts, for hosts running without a bucket.
type NoopArchiveSink struct{}

func (NoopArchiveSink) Upload(ctx context.Context, folder string, artifacts []Artifact) (*ArchiveResult, error) {
	links := make(map[string]string, len(artifacts))
	for _, artifact := range artifacts {
		links[artifact.LogicalName] = folder + "/" + artifact.LogicalName
	}
	return &ArchiveResult{FolderId: folder, Links: links}, nil
}

func (NoopArchiveSink) FolderExists(ctx context.Context, folder string) (bool, error) {
	return false, nil
}

// SinkFromConfig picks the archive sink for the configured storage provider.
func SinkFromConfig() ArchiveSink {
	if utils.GetStorageProvider() == "none" {
		return NoopArchiveSink{}
	}
	return GCSArchiveSink{}
}
