package analysis

import (
	"math"
	"sort"

	"github.com/miradorstack/mirador-pdm/internal/models"
)

// DefaultBadRowTolerance is the share of rows with a NaN or infinite feature
// that may be dropped; above it, bad cells are zero-filled instead.
const DefaultBadRowTolerance = 0.05

// Prepared is a feature table ready for fitting.
type Prepared struct {
	Features []string
	X        [][]float64
	Y        []int
	// Classes maps encoded labels back to names; Classes[i] encodes as i.
	Classes []models.Label
	// Dropped counts rows removed for holding non-finite values.
	Dropped int
	// ZeroFilled is set when non-finite cells were replaced with 0.
	ZeroFilled bool
}

// Prepare cleans a table and encodes its labels. Rows with an empty label are
// discarded first. If the rows holding a NaN or infinite feature make up at
// most tolerance of the table they are dropped; otherwise those cells are
// replaced with 0. Labels are encoded in lexical order, so KO is 0 and OK is 1.
func Prepare(table *models.FeatureTable, tolerance float64) Prepared {
	p := Prepared{Features: append([]string(nil), table.FeatureNames...)}

	var rows [][]float64
	var labels []models.Label
	for i, row := range table.Values {
		if table.Meta[i].Label == "" {
			continue
		}
		rows = append(rows, row)
		labels = append(labels, table.Meta[i].Label)
	}
	if len(rows) == 0 {
		return p
	}

	bad := make([]bool, len(rows))
	nBad := 0
	for i, row := range rows {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad[i] = true
				nBad++
				break
			}
		}
	}

	drop := float64(nBad)/float64(len(rows)) <= tolerance
	for i, row := range rows {
		if bad[i] && drop {
			p.Dropped++
			continue
		}
		out := append([]float64(nil), row...)
		if bad[i] {
			for j, v := range out {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					out[j] = 0
				}
			}
			p.ZeroFilled = true
		}
		p.X = append(p.X, out)
		p.Y = append(p.Y, 0)
		labels[len(p.X)-1] = labels[i]
	}
	labels = labels[:len(p.X)]

	p.Classes = encodeLabels(labels, p.Y)
	return p
}

// encodeLabels writes the lexical rank of each label into y and returns the
// sorted distinct labels.
func encodeLabels(labels []models.Label, y []int) []models.Label {
	set := map[models.Label]bool{}
	for _, l := range labels {
		set[l] = true
	}
	classes := make([]models.Label, 0, len(set))
	for l := range set {
		classes = append(classes, l)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	index := make(map[models.Label]int, len(classes))
	for i, l := range classes {
		index[l] = i
	}
	for i, l := range labels {
		y[i] = index[l]
	}
	return classes
}
