// Package repo reads and writes the on-disk dataset and feature tables.
package repo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/utils"
)

// MetadataFile is the per-acquisition metadata file name.
const MetadataFile = "metadata.json"

// ReadMetadata decodes dir/metadata.json.
func ReadMetadata(dir string) (*models.Metadata, error) {
	path := filepath.Join(dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewAppError("repo.ReadMetadata", "read "+path, err)
	}
	var meta models.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, utils.NewAppError("repo.ReadMetadata", "decode "+path, err)
	}
	return &meta, nil
}

// ReadRawMetadata decodes dir/metadata.json without a schema, for validation.
func ReadRawMetadata(dir string) (map[string]any, error) {
	path := filepath.Join(dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewAppError("repo.ReadRawMetadata", "read "+path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, utils.NewAppError("repo.ReadRawMetadata", "decode "+path, err)
	}
	return raw, nil
}

// WriteMetadata encodes meta to dir/metadata.json.
func WriteMetadata(dir string, meta *models.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	path := filepath.Join(dir, MetadataFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return utils.NewAppError("repo.WriteMetadata", "write "+path, err)
	}
	return nil
}
