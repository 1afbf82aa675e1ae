package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads the train manifest at path, checks it against the embedded
// schema and resolves relative paths against the manifest's directory.
//
// YAML and JSON manifests are both accepted whatever the extension.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, fmt.Errorf("manifest file not found: %s", path)
		case os.IsPermission(err):
			return nil, fmt.Errorf("permission denied reading manifest: %s", path)
		}
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.resolvePaths(filepath.Dir(path))
	return m, nil
}

// decode turns manifest bytes into a Manifest.
//
// The document is decoded once as YAML into a generic map. That map, not the
// struct, is what the schema checks, so unknown keys are still visible to
// additionalProperties. The typed value is then read from the same JSON.
func decode(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML/JSON in manifest: %w", err)
	}
	if doc == nil {
		return nil, errors.New("manifest file is empty")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("manifest is not representable as JSON: %w", err)
	}
	if err := checkSchema(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
