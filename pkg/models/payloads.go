package models

import "encoding/json"

// ImportFile documents the import file layout. The import gate only checks
// its top-level shape; Threads entries are forwarded verbatim.
type ImportFile struct {
	Version string   `json:"version,omitempty" jsonschema:"description=Import file format version"`
	Threads []Thread `json:"threads" jsonschema:"required,description=Threads to import"`
}

// ImportPayload is the validated request body for POST /threads/import.
type ImportPayload struct {
	Version string            `json:"version,omitempty"`
	Threads []json.RawMessage `json:"threads"`
}

// ImportResult is the backend response to an import.
type ImportResult struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

// SummarizeResult is the backend response to a summarize request.
type SummarizeResult struct {
	SummaryID int64          `json:"summary_id"`
	Summary   SummaryContent `json:"summary"`
}

// ExportArtifact is an approved summary's export payload, kept byte-for-byte
// as the backend sent it.
type ExportArtifact struct {
	SummaryID int64
	ThreadID  string
	Payload   json.RawMessage
}
