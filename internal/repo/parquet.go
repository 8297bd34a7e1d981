package repo

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/utils"
)

// ErrNoDataColumns is returned when a stream file has no numeric column.
var ErrNoDataColumns = errors.New("no numeric columns")

// ParquetReader loads sensor streams through an in-memory DuckDB instance.
// It is safe for concurrent use.
type ParquetReader struct {
	db *sql.DB
}

// NewParquetReader opens the embedded engine.
func NewParquetReader() (*ParquetReader, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &ParquetReader{db: db}, nil
}

// Close releases the engine.
func (r *ParquetReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// ReadStream loads every numeric column of a parquet file. Non-numeric
// columns are dropped; NULL cells become NaN.
func (r *ParquetReader) ReadStream(ctx context.Context, path string, key models.SensorKey) (*models.SensorStream, error) {
	query := fmt.Sprintf("SELECT * FROM read_parquet(%s)", quoteLiteral(path))
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, utils.NewAppError("repo.ReadStream", "query "+path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, utils.NewAppError("repo.ReadStream", "columns "+path, err)
	}

	numeric := make([]bool, len(cols))
	for i := range numeric {
		numeric[i] = true
	}
	data := make([][]float64, len(cols))
	cells := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range cells {
		ptrs[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, utils.NewAppError("repo.ReadStream", "scan "+path, err)
		}
		for i, cell := range cells {
			if !numeric[i] {
				continue
			}
			v, ok := toFloat(cell)
			if !ok {
				numeric[i] = false
				data[i] = nil
				continue
			}
			data[i] = append(data[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError("repo.ReadStream", "iterate "+path, err)
	}

	stream := &models.SensorStream{Key: key, Data: make(map[string][]float64)}
	for i, c := range cols {
		if !numeric[i] {
			continue
		}
		stream.Columns = append(stream.Columns, c)
		stream.Data[c] = data[i]
	}
	if len(stream.Columns) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoDataColumns)
	}
	return stream, nil
}

// WriteParquet stores columns as a parquet file. Data is staged through a
// temporary CSV that DuckDB converts with COPY.
func (r *ParquetReader) WriteParquet(ctx context.Context, path string, columns []string, data map[string][]float64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".stage-*.csv")
	if err != nil {
		return utils.NewAppError("repo.WriteParquet", "stage "+path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(columns); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	n := 0
	if len(columns) > 0 {
		n = len(data[columns[0]])
	}
	record := make([]string, len(columns))
	for row := 0; row < n; row++ {
		for c, name := range columns {
			record[c] = formatFloat(data[name][row])
		}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush stage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close stage: %w", err)
	}

	query := fmt.Sprintf("COPY (SELECT * FROM read_csv_auto(%s, header = true)) TO %s (FORMAT PARQUET)",
		quoteLiteral(tmpName), quoteLiteral(path))
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return utils.NewAppError("repo.WriteParquet", "copy "+path, err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int8:
		return float64(x), true
	case int:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint8:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
