package corpus

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/raaihank/civicguard/internal/privacy"
	"github.com/raaihank/civicguard/internal/rules"
	"github.com/segmentio/parquet-go"
)

func newPipeline(t *testing.T, registry *rules.Registry, cfg Config) *Pipeline {
	t.Helper()
	log := logger.NewNop()
	return NewPipeline(
		privacy.New(registry, log),
		draft.NewLeakDetector(registry, draft.LeakOptions{}),
		&cfg,
		log,
	)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func count(n int64) *int64 { return &n }

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"visits.csv":     FormatCSV,
		"VISITS.CSV":     FormatCSV,
		"visits.parquet": FormatParquet,
		"visits.jsonl":   FormatJSONL,
		"visits.json":    FormatJSONL,
		"visits.txt":     FormatUnknown,
	}
	for name, want := range tests {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestProcessCSV(t *testing.T) {
	path := writeFile(t, "visits.csv", strings.Join([]string{
		"text,id,expected_redactions",
		`"Call 555-867-5309 about the warrant.",v1,2`,
		`"She is undocumented, email jane@example.com.",v2,3`,
		`"Rent is late again.",v3,`,
		`"   ",v4,0`,
	}, "\n"))

	p := newPipeline(t, rules.Default(), Config{BatchSize: 2, WorkerCount: 3})
	result, err := p.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if result.TotalRecords != 4 || result.ProcessedOK != 3 || result.Skipped != 1 {
		t.Errorf("Unexpected totals %+v", result)
	}
	if result.Redactions != 4 {
		t.Errorf("Expected 4 redactions, got %d", result.Redactions)
	}
	if result.CountMismatches != 1 {
		t.Errorf("Expected 1 count mismatch, got %d", result.CountMismatches)
	}
	if result.IdempotenceFailures != 0 || result.LeakViolations != 0 {
		t.Errorf("Default rules must be idempotent and leak-free: %+v", result)
	}
	if result.Passed() {
		t.Error("Result with a mismatch must not pass")
	}

	kinds := map[IssueKind]string{}
	for _, issue := range result.Issues {
		kinds[issue.Kind] = issue.ID
		if strings.Contains(issue.Detail, "jane@example.com") {
			t.Errorf("Issue detail carries transcript text: %q", issue.Detail)
		}
	}
	if kinds[IssueCountMismatch] != "v2" || kinds[IssueInvalidRecord] != "v4" {
		t.Errorf("Unexpected issues %+v", result.Issues)
	}
	if result.RulesVersion != rules.Default().Version() {
		t.Errorf("Unexpected rules version %q", result.RulesVersion)
	}
}

func TestProcessCSVRequiresTextColumn(t *testing.T) {
	path := writeFile(t, "visits.csv", "id,body\nv1,hello\n")
	p := newPipeline(t, rules.Default(), Config{})
	if _, err := p.ProcessFile(context.Background(), path); err == nil {
		t.Error("Expected error for CSV without a text column")
	}
}

func TestProcessJSONLWithOutput(t *testing.T) {
	path := writeFile(t, "visits.jsonl", strings.Join([]string{
		`{"id":"a","text":"SSN 123-45-6789 on file.","expected_redactions":1}`,
		``,
		`{"text":"Client was detained last year."}`,
	}, "\n")+"\n")
	output := filepath.Join(t.TempDir(), "masked.jsonl")

	p := newPipeline(t, rules.Default(), Config{OutputPath: output})
	result, err := p.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !result.Passed() || result.Written != 2 {
		t.Fatalf("Unexpected result %+v", result)
	}

	file, err := os.Open(output)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer file.Close()

	var rows []MaskedRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var row MaskedRecord
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("Failed to decode output row: %v", err)
		}
		rows = append(rows, row)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 output rows, got %d", len(rows))
	}
	if rows[0].ID != "a" || rows[0].MaskedText != "SSN [SSN REDACTED] on file." {
		t.Errorf("Unexpected first row %+v", rows[0])
	}
	if rows[1].ID != "line_3" || !strings.Contains(rows[1].MaskedText, rules.LegalStatusLabel) {
		t.Errorf("Unexpected second row %+v", rows[1])
	}
}

func TestProcessParquetRoundTrip(t *testing.T) {
	input := filepath.Join(t.TempDir(), "visits.parquet")
	records := []Record{
		{ID: "p1", Text: "Lives at 42 Elm Street with her sister.", ExpectedRedactions: count(1)},
		{ID: "p2", Text: "Her partner is on parole."},
		{ID: "p3", Text: "No identifiers here."},
	}
	if err := parquet.WriteFile(input, records); err != nil {
		t.Fatalf("Failed to write Parquet fixture: %v", err)
	}
	output := filepath.Join(t.TempDir(), "masked.parquet")

	p := newPipeline(t, rules.Default(), Config{BatchSize: 2, OutputPath: output})
	result, err := p.ProcessFile(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if result.TotalRecords != 3 || result.Redactions != 2 || !result.Passed() {
		t.Fatalf("Unexpected result %+v", result)
	}

	rows, err := parquet.ReadFile[MaskedRecord](output)
	if err != nil {
		t.Fatalf("Failed to read Parquet output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.ID != records[i].ID {
			t.Errorf("Row %d out of order: %q", i, row.ID)
		}
	}
	if rows[1].MaskedText != "Her partner is on "+rules.LegalStatusLabel+"." {
		t.Errorf("Unexpected masked text %q", rows[1].MaskedText)
	}
}

func TestLeakAfterMask(t *testing.T) {
	// A forbidden term with no matching term rule survives masking.
	spec := rules.DefaultSpec()
	spec.Forbidden = append(spec.Forbidden, "bail")
	registry, err := rules.New(spec)
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	path := writeFile(t, "visits.jsonl", `{"id":"x","text":"Family raised bail money."}`+"\n")
	p := newPipeline(t, registry, Config{})
	result, err := p.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if result.LeakViolations != 1 || result.Passed() {
		t.Fatalf("Expected a leak violation, got %+v", result)
	}
	if result.Issues[0].Kind != IssueLeakAfterMask || !strings.Contains(result.Issues[0].Detail, `"bail"`) {
		t.Errorf("Unexpected issue %+v", result.Issues[0])
	}
}

func TestOversizedRecordSkipped(t *testing.T) {
	path := writeFile(t, "visits.jsonl", `{"id":"big","text":"`+strings.Repeat("a", 64)+`"}`+"\n")
	p := newPipeline(t, rules.Default(), Config{MaxTextBytes: 32})
	result, err := p.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if result.Skipped != 1 || result.Issues[0].Kind != IssueInvalidRecord {
		t.Errorf("Expected oversized record to be skipped, got %+v", result)
	}
}

func TestProcessFileErrors(t *testing.T) {
	p := newPipeline(t, rules.Default(), Config{})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		path := writeFile(t, "visits.txt", "hello")
		if _, err := p.ProcessFile(context.Background(), path); err == nil {
			t.Error("Expected error for unsupported format")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "none.csv")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		path := writeFile(t, "visits.jsonl", "{\"id\":\"a\",\"text\":\"ok\"}\n{broken\n")
		if _, err := p.ProcessFile(context.Background(), path); err == nil {
			t.Error("Expected error for malformed JSONL")
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		path := writeFile(t, "visits.jsonl", `{"id":"a","text":"ok"}`+"\n")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := p.ProcessFile(ctx, path); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}
