package models

// ImportanceRecord is one (sensor table, feature) pair of an analysis.
type ImportanceRecord struct {
	Sensor         string  `json:"sensor"`
	Feature        string  `json:"feature"`
	Importance     float64 `json:"importance"`
	SensorAccuracy float64 `json:"sensor_accuracy"`
	GlobalScore    float64 `json:"global_score"`
}

// SensorScore is one entry of the sensor reliability ranking.
type SensorScore struct {
	Sensor   string  `json:"sensor"`
	Accuracy float64 `json:"accuracy"`
}

// Report is the successful result of a feature importance analysis.
type Report struct {
	Algorithm   string             `json:"algorithm"`
	Ranking     []SensorScore      `json:"ranking"`
	TopFeatures []ImportanceRecord `json:"top_features"`
	Reliability Figure             `json:"reliability_figure"`
	Importance  Figure             `json:"importance_figure"`
}

// FigureKind tells a renderer how to draw a Figure.
type FigureKind string

const (
	FigureBar  FigureKind = "bar"
	FigureLine FigureKind = "line"
)

// Figure is a renderer-agnostic chart description.
type Figure struct {
	Kind       FigureKind      `json:"kind"`
	Title      string          `json:"title"`
	XLabel     string          `json:"x_label"`
	YLabel     string          `json:"y_label"`
	// XMax clips the x axis when positive.
	XMax       float64         `json:"x_max,omitempty"`
	Bars       []Bar           `json:"bars,omitempty"`
	Series     []Series        `json:"series,omitempty"`
	References []ReferenceLine `json:"references,omitempty"`
}

// Bar is one bar of a bar chart; Group drives the legend/colour.
type Bar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Group string  `json:"group,omitempty"`
}

// Series is one line of a line chart.
type Series struct {
	Name string    `json:"name"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
}

// ReferenceLine is a horizontal guide at Value.
type ReferenceLine struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}
