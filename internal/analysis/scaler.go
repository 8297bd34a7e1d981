package analysis

import "gonum.org/v1/gonum/stat"

// standardScaler centres each column and scales it to unit population
// variance. Constant columns keep a scale of 1.
type standardScaler struct {
	mean  []float64
	scale []float64
}

func (s *standardScaler) fit(x [][]float64) {
	p := len(x[0])
	s.mean = make([]float64, p)
	s.scale = make([]float64, p)
	col := make([]float64, len(x))
	for j := 0; j < p; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.mean[j] = mean
		if std == 0 {
			std = 1
		}
		s.scale[j] = std
	}
}

func (s *standardScaler) transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.mean[j]) / s.scale[j]
		}
		out[i] = r
	}
	return out
}
