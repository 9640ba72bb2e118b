package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/valter-silva-au/thread-review/pkg/models"
	"gopkg.in/yaml.v3"
)

// ExportFormat selects the on-disk encoding of export artifacts.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportYAML ExportFormat = "yaml"
)

// unsafeFileChars matches characters that must not appear in a file name.
var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportStore writes approved-summary export artifacts as one file each,
// named summary_<thread_id>_<unix-millis>.<ext>.
type ExportStore struct {
	dir    string
	format ExportFormat
	now    func() time.Time
}

// NewExportStore creates an ExportStore writing to dir in the given format.
func NewExportStore(dir string, format ExportFormat) (*ExportStore, error) {
	if format != ExportJSON && format != ExportYAML {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return &ExportStore{dir: dir, format: format, now: time.Now}, nil
}

// Dir returns the directory artifacts are written to.
func (s *ExportStore) Dir() string { return s.dir }

// FileName returns the artifact file name for threadID at time t.
func (s *ExportStore) FileName(threadID string, t time.Time) string {
	safe := unsafeFileChars.ReplaceAllString(threadID, "_")
	if safe == "" {
		safe = "unknown"
	}
	return fmt.Sprintf("summary_%s_%d.%s", safe, t.UnixMilli(), s.format)
}

// Write encodes the artifact payload and writes it under the export
// directory. JSON output keeps the payload's content and key order; YAML
// output is the same document in block style.
func (s *ExportStore) Write(artifact models.ExportArtifact) (string, error) {
	if len(bytes.TrimSpace(artifact.Payload)) == 0 {
		return "", fmt.Errorf("export for summary %d is empty", artifact.SummaryID)
	}

	var (
		data []byte
		err  error
	)
	switch s.format {
	case ExportYAML:
		data, err = jsonToYAML(artifact.Payload)
	default:
		var buf bytes.Buffer
		err = json.Indent(&buf, artifact.Payload, "", "  ")
		buf.WriteByte('\n')
		data = buf.Bytes()
	}
	if err != nil {
		return "", fmt.Errorf("encoding export for summary %d: %w", artifact.SummaryID, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(s.dir, s.FileName(artifact.ThreadID, s.now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export %s: %w", path, err)
	}
	return path, nil
}

// jsonToYAML re-encodes a JSON document as block-style YAML. Decoding into
// a yaml.Node keeps object key order.
func jsonToYAML(payload []byte) ([]byte, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	clearFlowStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clearFlowStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, c := range n.Content {
		clearFlowStyle(c)
	}
}
