package corpus

import (
	"bufio"
	"fmt"
	"os"

	"github.com/segmentio/parquet-go"
)

// sink receives masked records in input order
type sink interface {
	write(records []MaskedRecord) error
	Close() error
}

func openSink(path string) (sink, error) {
	format := DetectFileFormat(path)
	if format != FormatParquet && format != FormatJSONL {
		return nil, fmt.Errorf("unsupported output format: %s", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	if format == FormatParquet {
		return &parquetSink{file: file, writer: parquet.NewGenericWriter[MaskedRecord](file)}, nil
	}
	return &jsonlSink{file: file, buf: bufio.NewWriter(file)}, nil
}

type parquetSink struct {
	file   *os.File
	writer *parquet.GenericWriter[MaskedRecord]
}

func (s *parquetSink) write(records []MaskedRecord) error {
	if _, err := s.writer.Write(records); err != nil {
		return fmt.Errorf("failed to write Parquet rows: %w", err)
	}
	return nil
}

func (s *parquetSink) Close() error {
	if err := s.writer.Close(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to finalize Parquet file: %w", err)
	}
	return s.file.Close()
}

type jsonlSink struct {
	file *os.File
	buf  *bufio.Writer
}

func (s *jsonlSink) write(records []MaskedRecord) error {
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.ID, err)
		}
		s.buf.Write(line)
		s.buf.WriteByte('\n')
	}
	return nil
}

func (s *jsonlSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to flush JSONL output: %w", err)
	}
	return s.file.Close()
}
