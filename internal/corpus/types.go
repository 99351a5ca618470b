// Package corpus runs the redaction engine over transcript datasets and
// checks that the masked output is stable and free of legal-status terms.
package corpus

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one transcript from an input dataset
type Record struct {
	ID                 string `parquet:"id" json:"id"`
	Text               string `parquet:"text" json:"text"`
	ExpectedRedactions *int64 `parquet:"expected_redactions" json:"expected_redactions,omitempty"`
}

// MaskedRecord is one row of masked output. It never carries the raw text.
type MaskedRecord struct {
	ID             string `parquet:"id" json:"id"`
	MaskedText     string `parquet:"masked_text" json:"masked_text"`
	RedactionCount int64  `parquet:"redaction_count" json:"redaction_count"`
	RulesVersion   string `parquet:"rules_version" json:"rules_version"`
}

// IssueKind classifies a failed check
type IssueKind string

const (
	IssueCountMismatch IssueKind = "count_mismatch"
	IssueNotIdempotent IssueKind = "not_idempotent"
	IssueLeakAfterMask IssueKind = "leak_after_mask"
	IssueInvalidRecord IssueKind = "invalid_record"
)

// Issue describes one failed check by record ID. Detail holds counts or
// term names, never transcript text.
type Issue struct {
	ID     string    `json:"id"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

// ProcessingResult represents the result of auditing a dataset
type ProcessingResult struct {
	TotalRecords        int64         `json:"total_records"`
	ProcessedOK         int64         `json:"processed_ok"`
	Skipped             int64         `json:"skipped"`
	Redactions          int64         `json:"redactions"`
	CountMismatches     int64         `json:"count_mismatches"`
	IdempotenceFailures int64         `json:"idempotence_failures"`
	LeakViolations      int64         `json:"leak_violations"`
	Written             int64         `json:"written"`
	RulesVersion        string        `json:"rules_version"`
	Duration            time.Duration `json:"duration"`
	Issues              []Issue       `json:"issues,omitempty"`
}

// Passed reports whether every record cleared every check
func (r *ProcessingResult) Passed() bool {
	return r.CountMismatches == 0 && r.IdempotenceFailures == 0 && r.LeakViolations == 0
}

// Config contains corpus pipeline configuration
type Config struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int    `yaml:"worker_count" mapstructure:"worker_count"`
	MaxTextBytes   int    `yaml:"max_text_bytes" mapstructure:"max_text_bytes"`
	ProgressReport int    `yaml:"progress_report" mapstructure:"progress_report"`
	MaxIssues      int    `yaml:"max_issues" mapstructure:"max_issues"`
	OutputPath     string `yaml:"output_path" mapstructure:"output_path"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
	FormatUnknown FileFormat = "unknown"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	default:
		return FormatUnknown
	}
}
