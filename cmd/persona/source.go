package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"persona/internal/evidence"
)

// loadSource builds the research corpus from input files. A .yaml/.yml file
// is decoded as a full corpus (documents with IDs and titles); anything else
// is read as one plain-text document named after the file.
func loadSource(paths []string) (*evidence.SourceData, error) {
	source := &evidence.SourceData{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read input %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			var corpus evidence.SourceData
			if err := yaml.Unmarshal(data, &corpus); err != nil {
				return nil, fmt.Errorf("parse corpus %s: %w", path, err)
			}
			source.Documents = append(source.Documents, corpus.Documents...)
		default:
			source.Documents = append(source.Documents, evidence.Document{
				ID:   docID(path),
				Text: string(data),
			})
		}
	}
	if source.Empty() {
		return nil, fmt.Errorf("no usable text in %d input file(s)", len(paths))
	}
	return source, nil
}

func docID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
