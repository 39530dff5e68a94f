package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// TimestampRow is the Parquet schema of one archived time_entry row.
type TimestampRow struct {
	TimestampUS int64  `parquet:"timestamp_us"`
	RFC3339     string `parquet:"rfc3339,snappy"`

	Year  int `parquet:"year,dict"`
	Month int `parquet:"month,dict"`
	Day   int `parquet:"day,dict"`
}

// RowFromTime converts a stored timestamp to a row. Stored values carry no
// zone, so they are archived as UTC.
func RowFromTime(ts time.Time) TimestampRow {
	ts = ts.UTC()
	return TimestampRow{
		TimestampUS: ts.UnixMicro(),
		RFC3339:     ts.Format(time.RFC3339Nano),
		Year:        ts.Year(),
		Month:       int(ts.Month()),
		Day:         ts.Day(),
	}
}

// Time returns the row's timestamp.
func (r TimestampRow) Time() time.Time {
	return time.UnixMicro(r.TimestampUS).UTC()
}

// ParquetWriter encodes timestamp rows as Parquet.
type ParquetWriter struct {
	config ParquetConfig
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(cfg ParquetConfig) *ParquetWriter {
	return &ParquetWriter{
		config: cfg,
	}
}

// Write encodes rows into a single Parquet file and returns its bytes.
func (w *ParquetWriter) Write(rows []TimestampRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRowsToWrite
	}

	var buf bytes.Buffer

	writer := parquet.NewGenericWriter[TimestampRow](&buf,
		parquet.Compression(w.codec()),
		parquet.CreatedBy("timebuffer-archiver", "1.0.0", ""),
	)

	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

func (w *ParquetWriter) codec() compress.Codec {
	switch w.config.Compression {
	case "gzip":
		return &parquet.Gzip
	case "zstd":
		return &parquet.Zstd
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}
