package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Metadata is the index watermark persisted next to the vector
// collection: the highest post number whose windows have been indexed,
// and when the index was last touched.
type Metadata struct {
	LastProcessedNo int64  `json:"last_processed_no"`
	LastUpdate      string `json:"last_update,omitempty"`
}

// LoadMetadata reads the metadata file; a missing file means a fresh
// index and returns zero metadata.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, nil
		}
		return Metadata{}, fmt.Errorf("read index metadata %s: %w", path, err)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse index metadata %s: %w", path, err)
	}
	return m, nil
}

// SaveMetadata stamps LastUpdate and writes atomically via a temp file
// so a crash mid-write never corrupts the watermark.
func SaveMetadata(path string, m Metadata) error {
	m.LastUpdate = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".index_metadata-*.json")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write index metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close index metadata: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace index metadata %s: %w", path, err)
	}
	return nil
}
