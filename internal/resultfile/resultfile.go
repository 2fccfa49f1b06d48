// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resultfile saves search results to disk and loads them back.
// The researcher can archive a completed search as YAML and reload it
// later without re-running the pipeline.
package resultfile

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// File is the on-disk representation of a completed search.
type File struct {
	Saved  time.Time          `yaml:"saved"`
	Result types.SearchResult `yaml:"result"`
}

// Write saves a search result to a YAML file.
func Write(path string, res *types.SearchResult) error {
	f := File{
		Saved:  time.Now(),
		Result: *res,
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshaling result file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads a previously saved result file from disk.
func Read(path string) (*types.SearchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing result file: %w", err)
	}
	return &f.Result, nil
}
