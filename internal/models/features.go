package models

import (
	"math"
	"sort"
)

// FeatureTable holds feature rows for one sensor key. Values is row-major and
// aligned with FeatureNames; Meta is aligned with Values.
type FeatureTable struct {
	Key          SensorKey
	FeatureNames []string
	Values       [][]float64
	Meta         []RowMeta
}

// Rows reports the number of feature rows.
func (t *FeatureTable) Rows() int {
	if t == nil {
		return 0
	}
	return len(t.Values)
}

// Empty reports whether the table carries no rows.
func (t *FeatureTable) Empty() bool { return t.Rows() == 0 }

// Column returns a copy of the named feature column.
func (t *FeatureTable) Column(name string) ([]float64, bool) {
	idx := -1
	for i, n := range t.FeatureNames {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Values))
	for r, row := range t.Values {
		out[r] = row[idx]
	}
	return out, true
}

// ConcatTables concatenates tables of the same key. Feature columns are the
// union of all inputs in first-seen order; cells missing from a table are NaN.
// The result shares no slices with the inputs.
func ConcatTables(key SensorKey, tables ...*FeatureTable) *FeatureTable {
	out := &FeatureTable{Key: key}
	index := map[string]int{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, name := range t.FeatureNames {
			if _, ok := index[name]; !ok {
				index[name] = len(out.FeatureNames)
				out.FeatureNames = append(out.FeatureNames, name)
			}
		}
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for r, row := range t.Values {
			merged := make([]float64, len(out.FeatureNames))
			for i := range merged {
				merged[i] = math.NaN()
			}
			for c, name := range t.FeatureNames {
				merged[index[name]] = row[c]
			}
			out.Values = append(out.Values, merged)
			out.Meta = append(out.Meta, t.Meta[r])
		}
	}
	return out
}

// SortColumns reorders feature columns so that less holds between
// neighbours. Rows are permuted in place.
func (t *FeatureTable) SortColumns(less func(a, b string) bool) {
	perm := make([]int, len(t.FeatureNames))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool { return less(t.FeatureNames[perm[i]], t.FeatureNames[perm[j]]) })

	names := make([]string, len(perm))
	for i, p := range perm {
		names[i] = t.FeatureNames[p]
	}
	t.FeatureNames = names
	for r, row := range t.Values {
		sorted := make([]float64, len(row))
		for i, p := range perm {
			sorted[i] = row[p]
		}
		t.Values[r] = sorted
	}
}

// SortedKeys returns map keys ordered by their string form.
func SortedKeys[V any](m map[SensorKey]V) []SensorKey {
	keys := make([]SensorKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
