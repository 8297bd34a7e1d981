package models

// SensorStream is one sensor key's raw samples for one acquisition, stored
// column-major. Columns keeps the source order.
type SensorStream struct {
	Key     SensorKey
	Columns []string
	Data    map[string][]float64
}

// Len reports the sample count, taken from the first column.
func (s *SensorStream) Len() int {
	if s == nil || len(s.Columns) == 0 {
		return 0
	}
	return len(s.Data[s.Columns[0]])
}

// Column returns the samples of a named column and whether it exists.
func (s *SensorStream) Column(name string) ([]float64, bool) {
	v, ok := s.Data[name]
	return v, ok
}
