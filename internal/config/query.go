package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapscan/internal/core"
)

// QueryConfig is a saved scan, read by `scan --query` and `validate -f`.
// Unset fields mean "not constrained": nil Columns selects every column, an
// empty Where disables filtering and a nil Limit is unbounded.
type QueryConfig struct {
	File      string   `json:"file" yaml:"file"`
	Columns   []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	Where     string   `json:"where,omitempty" yaml:"where,omitempty"`
	Limit     *int64   `json:"limit,omitempty" yaml:"limit,omitempty"`
	BatchSize int      `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	Format    string   `json:"format,omitempty" yaml:"format,omitempty"`
}

// Validate checks field ranges. Column names and the predicate are checked
// against the schema when the query is opened.
func (q *QueryConfig) Validate() error {
	if q.File == "" {
		return fmt.Errorf("%w: query file is required", core.ErrConfigInvalid)
	}
	if q.Limit != nil && *q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative, got %d", core.ErrConfigInvalid, *q.Limit)
	}
	if q.BatchSize < 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", core.ErrConfigInvalid, q.BatchSize)
	}
	if q.Format != "" && !validFormats[q.Format] {
		return fmt.Errorf("%w: invalid output format: %s", core.ErrConfigInvalid, q.Format)
	}
	for i, c := range q.Columns {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: columns[%d]: name is required", core.ErrConfigInvalid, i)
		}
	}
	return nil
}

// ParseQueryConfig parses a query from JSON.
func ParseQueryConfig(data []byte) (*QueryConfig, error) {
	var q QueryConfig
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to parse query config: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// ParseQueryConfigYAML parses a query from YAML.
func ParseQueryConfigYAML(data []byte) (*QueryConfig, error) {
	var q QueryConfig
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to parse query config: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// ParseQueryConfigAuto picks the parser from the file extension; anything
// other than .yaml/.yml is treated as JSON.
func ParseQueryConfigAuto(data []byte, filename string) (*QueryConfig, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return ParseQueryConfigYAML(data)
	default:
		return ParseQueryConfig(data)
	}
}

// LoadQueryConfig reads and parses the query file at path. A relative
// capture path inside the file is resolved against the query file's directory.
func LoadQueryConfig(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file %s: %w", path, err)
	}
	q, err := ParseQueryConfigAuto(data, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(q.File) {
		q.File = filepath.Join(filepath.Dir(path), q.File)
	}
	return q, nil
}
