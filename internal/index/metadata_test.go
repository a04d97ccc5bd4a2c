package index

import (
	"path/filepath"
	"testing"
)

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index_metadata.json")

	if err := SaveMetadata(path, Metadata{LastProcessedNo: 135}); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	m, err := LoadMetadata(path)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if m.LastProcessedNo != 135 {
		t.Fatalf("last_processed_no: want=135 got=%d", m.LastProcessedNo)
	}
	if m.LastUpdate == "" {
		t.Fatalf("last_update not stamped on save")
	}
}

func TestLoadMetadataMissingFile(t *testing.T) {
	m, err := LoadMetadata(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should be zero metadata, got error: %v", err)
	}
	if m.LastProcessedNo != 0 || m.LastUpdate != "" {
		t.Fatalf("missing file should be zero metadata, got %+v", m)
	}
}

func TestSaveMetadataOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index_metadata.json")
	if err := SaveMetadata(path, Metadata{LastProcessedNo: 50}); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	if err := SaveMetadata(path, Metadata{LastProcessedNo: 130}); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	m, err := LoadMetadata(path)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if m.LastProcessedNo != 130 {
		t.Fatalf("last_processed_no: want=130 got=%d", m.LastProcessedNo)
	}
}
