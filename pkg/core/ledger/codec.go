package ledger

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// EncodeSnapshot serializes rows to a parquet blob with snappy compression
// (the format every job reads and writes).
func EncodeSnapshot[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf, parquet.Compression(&parquet.Snappy))
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return nil, fmt.Errorf("write rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot deserializes a parquet blob into rows.
func DecodeSnapshot[T any](data []byte) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}
