package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/valter-silva-au/thread-review/pkg/models"
	"gopkg.in/yaml.v3"
)

// ImportFormat selects how a raw import payload is decoded.
type ImportFormat string

const (
	ImportFormatJSON ImportFormat = "json"
	ImportFormatYAML ImportFormat = "yaml"
)

// ImportFormatForPath picks the decoder from a file extension; anything that
// is not .yaml or .yml is treated as JSON.
func ImportFormatForPath(path string) ImportFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ImportFormatYAML
	default:
		return ImportFormatJSON
	}
}

// ValidateImport is the import shape gate. It checks that raw decodes and
// that its top-level "threads" field is an array, then hands each thread
// entry on unchanged. Field-level checks are left to the backend.
func ValidateImport(raw []byte) (*models.ImportPayload, error) {
	return ValidateImportAs(raw, ImportFormatJSON)
}

// ValidateImportAs is ValidateImport with an explicit input format. YAML
// input is normalised to JSON before the shape check.
func ValidateImportAs(raw []byte, format ImportFormat) (*models.ImportPayload, error) {
	if format == ImportFormatYAML {
		converted, err := yamlToJSON(raw)
		if err != nil {
			return nil, err
		}
		raw = converted
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		var probe any
		if json.Unmarshal(raw, &probe) == nil {
			return nil, fmt.Errorf("%w: import payload must be an object", ErrSchemaViolation)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}

	threadsRaw, ok := top["threads"]
	if !ok {
		return nil, fmt.Errorf("%w: threads must be an array", ErrSchemaViolation)
	}
	var threads []json.RawMessage
	trimmed := bytes.TrimSpace(threadsRaw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: threads must be an array", ErrSchemaViolation)
	}
	if err := json.Unmarshal(trimmed, &threads); err != nil {
		return nil, fmt.Errorf("%w: threads must be an array", ErrSchemaViolation)
	}
	if threads == nil {
		threads = []json.RawMessage{}
	}

	payload := &models.ImportPayload{Threads: threads}
	if v, ok := top["version"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			payload.Version = s
		} else {
			payload.Version = string(bytes.TrimSpace(v))
		}
	}
	return payload, nil
}

// ThreadIDs returns the thread_id of every entry that carries one, in order.
// It is best effort and never fails; entries are not validated here.
func ThreadIDs(payload *models.ImportPayload) []string {
	var ids []string
	for _, entry := range payload.Threads {
		var probe struct {
			ThreadID string `json:"thread_id"`
		}
		if json.Unmarshal(entry, &probe) == nil && probe.ThreadID != "" {
			ids = append(ids, probe.ThreadID)
		}
	}
	return ids
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	out, err := json.Marshal(normaliseYAML(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return out, nil
}

// normaliseYAML converts map[any]any nodes (non-string keys) into
// map[string]any so the tree can be re-encoded as JSON.
func normaliseYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normaliseYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normaliseYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normaliseYAML(val)
		}
		return t
	default:
		return v
	}
}
