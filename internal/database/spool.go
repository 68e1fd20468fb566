package database

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SpoolArtifact is the on-disk fallback for a run that could not be
// written to InfluxDB.
type SpoolArtifact struct {
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`

	RunID   string `json:"run_id"`
	RunName string `json:"run_name"`

	Metadata   *RunRecord        `json:"metadata"`
	Placements []PlacementRecord `json:"placements"`
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("QCPACK_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

// WriteSpoolArtifact writes a gzip-compressed JSON artifact to disk
// atomically. It returns the final file path.
func WriteSpoolArtifact(dir string, artifact *SpoolArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("spool artifact is nil")
	}
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	id := artifact.RunID
	if id == "" {
		id = "norun"
	}
	name := fmt.Sprintf(
		"packing_%s_%s.json.gz",
		artifact.CreatedAt.UTC().Format("20060102T150405Z"),
		id,
	)
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

// BuildSpoolArtifact constructs a spool artifact from the in-memory
// run records.
func BuildSpoolArtifact(run *RunRecord, placements []PlacementRecord) *SpoolArtifact {
	name := ""
	id := ""
	if run != nil {
		name = run.RunName
		id = run.RunID
	}
	return &SpoolArtifact{
		Version:    1,
		CreatedAt:  time.Now(),
		RunID:      id,
		RunName:    name,
		Metadata:   run,
		Placements: placements,
	}
}
