package corpus

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/parquet-go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxLineBytes bounds a single JSONL record
const maxLineBytes = 4 << 20

// source yields records in batches; an empty batch with a nil error is the
// end of input
type source interface {
	next(size int) ([]Record, error)
	Close() error
}

func openSource(path string, format FileFormat) (source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", format, err)
	}

	switch format {
	case FormatCSV:
		src, err := newCSVSource(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		return src, nil
	case FormatParquet:
		return &parquetSource{file: file, reader: parquet.NewGenericReader[Record](file)}, nil
	case FormatJSONL:
		return newJSONLSource(file), nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// csvSource reads id,text[,expected_redactions] with a header row in any
// column order
type csvSource struct {
	file    *os.File
	reader  *csv.Reader
	columns map[string]int
	row     int
}

func newCSVSource(file *os.File) (*csvSource, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["text"]; !ok {
		return nil, errors.New("CSV header has no text column")
	}
	return &csvSource{file: file, reader: reader, columns: columns}, nil
}

func (s *csvSource) field(record []string, name string) string {
	i, ok := s.columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func (s *csvSource) next(size int) ([]Record, error) {
	var batch []Record
	for len(batch) < size {
		row, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("failed to read CSV record: %w", err)
		}
		s.row++

		record := Record{
			ID:   s.field(row, "id"),
			Text: s.field(row, "text"),
		}
		if record.ID == "" {
			record.ID = "row_" + strconv.Itoa(s.row)
		}
		if raw := strings.TrimSpace(s.field(row, "expected_redactions")); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return batch, fmt.Errorf("failed to parse expected_redactions on row %d: %w", s.row, err)
			}
			record.ExpectedRedactions = &n
		}
		batch = append(batch, record)
	}
	return batch, nil
}

func (s *csvSource) Close() error { return s.file.Close() }

type parquetSource struct {
	file   *os.File
	reader *parquet.GenericReader[Record]
}

func (s *parquetSource) next(size int) ([]Record, error) {
	batch := make([]Record, size)
	n, err := s.reader.Read(batch)
	if err != nil && err != io.EOF {
		return batch[:n], fmt.Errorf("failed to read Parquet rows: %w", err)
	}
	return batch[:n], nil
}

func (s *parquetSource) Close() error {
	s.reader.Close()
	return s.file.Close()
}

// jsonlSource reads one JSON object per line; blank lines are skipped
type jsonlSource struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

func newJSONLSource(file *os.File) *jsonlSource {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &jsonlSource{file: file, scanner: scanner}
}

func (s *jsonlSource) next(size int) ([]Record, error) {
	var batch []Record
	for len(batch) < size && s.scanner.Scan() {
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			return batch, fmt.Errorf("failed to decode JSON record on line %d: %w", s.line, err)
		}
		if record.ID == "" {
			record.ID = "line_" + strconv.Itoa(s.line)
		}
		batch = append(batch, record)
	}
	if err := s.scanner.Err(); err != nil {
		return batch, fmt.Errorf("failed to read JSONL file: %w", err)
	}
	return batch, nil
}

func (s *jsonlSource) Close() error { return s.file.Close() }
