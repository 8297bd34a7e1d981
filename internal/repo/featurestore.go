package repo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/utils"
)

// TableExt is the extension of persisted feature tables.
const TableExt = ".csv"

// Columns written by older extractors that carry no feature signal.
var ignoredColumns = map[string]bool{
	"Window_Start_Index": true,
	"Sensor_Name":        true,
}

// FeatureStore persists one CSV per sensor key inside a directory.
type FeatureStore struct {
	dir string
}

// NewFeatureStore binds a store to dir. The directory is created on first write.
func NewFeatureStore(dir string) *FeatureStore {
	return &FeatureStore{dir: dir}
}

// Dir returns the backing directory.
func (s *FeatureStore) Dir() string { return s.dir }

// PathFor returns the table path of key.
func (s *FeatureStore) PathFor(key models.SensorKey) string {
	return filepath.Join(s.dir, key.String()+TableExt)
}

// Write replaces the table of t.Key. The file is staged next to its target and
// renamed into place, so readers never observe a partial table.
func (s *FeatureStore) Write(t *models.FeatureTable) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", utils.NewAppError("repo.FeatureStore.Write", "create "+s.dir, err)
	}
	target := s.PathFor(t.Key)
	tmp, err := os.CreateTemp(s.dir, "."+t.Key.String()+"-*.tmp")
	if err != nil {
		return "", utils.NewAppError("repo.FeatureStore.Write", "stage "+target, err)
	}
	tmpName := tmp.Name()

	if err := writeTable(tmp, t); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", utils.NewAppError("repo.FeatureStore.Write", "rename "+target, err)
	}
	return target, nil
}

func writeTable(w io.Writer, t *models.FeatureTable) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), t.FeatureNames...), models.MetaColumns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for r, row := range t.Values {
		for c, v := range row {
			record[c] = formatFloat(v)
		}
		m := t.Meta[r]
		n := len(row)
		record[n] = m.Condition
		record[n+1] = m.FaultDetail
		record[n+2] = string(m.Label)
		record[n+3] = m.AcquisitionID
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TableFile is one conforming table found in a store directory.
type TableFile struct {
	Key  models.SensorKey
	Path string
}

// List returns the conforming {name}_{type}.csv tables, sorted by path. A
// missing directory lists as empty.
func (s *FeatureStore) List() ([]TableFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, utils.NewAppError("repo.FeatureStore.List", "read "+s.dir, err)
	}
	var files []TableFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, TableExt) || strings.HasPrefix(name, ".") {
			continue
		}
		key, err := models.ParseSensorKey(strings.TrimSuffix(name, TableExt))
		if err != nil {
			continue
		}
		files = append(files, TableFile{Key: key, Path: filepath.Join(s.dir, name)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadTable loads a persisted table. Metadata and ignored columns are split
// off; any other column holding a non-numeric cell is dropped. Empty cells
// read as NaN.
func ReadTable(path string) (*models.FeatureTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.NewAppError("repo.ReadTable", "open "+path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, utils.NewAppError("repo.ReadTable", "header "+path, err)
	}
	header = append([]string(nil), header...)

	metaIdx := map[string]int{}
	var featIdx []int
	for i, name := range header {
		switch {
		case isMetaColumn(name):
			metaIdx[name] = i
		case ignoredColumns[name]:
		default:
			featIdx = append(featIdx, i)
		}
	}

	numeric := make([]bool, len(featIdx))
	for i := range numeric {
		numeric[i] = true
	}
	var values [][]float64
	var meta []models.RowMeta
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, utils.NewAppError("repo.ReadTable", "row in "+path, err)
		}
		row := make([]float64, len(featIdx))
		for j, i := range featIdx {
			if !numeric[j] {
				continue
			}
			v, ok := parseCell(rec[i])
			if !ok {
				numeric[j] = false
				continue
			}
			row[j] = v
		}
		values = append(values, row)
		meta = append(meta, models.RowMeta{
			Condition:     cell(rec, metaIdx, models.ColumnCondition),
			FaultDetail:   cell(rec, metaIdx, models.ColumnFaultDetail),
			Label:         models.Label(cell(rec, metaIdx, models.ColumnBinaryLabel)),
			AcquisitionID: cell(rec, metaIdx, models.ColumnAcquisitionID),
		})
	}

	key, _ := models.ParseSensorKey(strings.TrimSuffix(filepath.Base(path), TableExt))
	table := &models.FeatureTable{Key: key, Meta: meta}
	var keep []int
	for j, i := range featIdx {
		if numeric[j] {
			keep = append(keep, j)
			table.FeatureNames = append(table.FeatureNames, header[i])
		}
	}
	table.Values = make([][]float64, len(values))
	for r, row := range values {
		out := make([]float64, len(keep))
		for c, j := range keep {
			out[c] = row[j]
		}
		table.Values[r] = out
	}
	return table, nil
}

func isMetaColumn(name string) bool {
	for _, m := range models.MetaColumns {
		if m == name {
			return true
		}
	}
	return false
}

func cell(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok {
		return ""
	}
	return rec[i]
}

func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		// Overflowing literals still parse to ±Inf.
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return v, true
		}
		return 0, false
	}
	return v, true
}
