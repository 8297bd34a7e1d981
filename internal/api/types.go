package api

import (
	"encoding/json"

	"github.com/miradorstack/mirador-pdm/internal/models"
)

// SensorSelector is the wire form of a sensor request. Empty fields mean
// "any"; both empty selects every sensor.
type SensorSelector struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// BuildFeaturesRequest asks for a corpus build. Empty fields fall back to the
// server's configured dataset and feature directories.
type BuildFeaturesRequest struct {
	DatasetRoot string `json:"dataset_root,omitempty"`
	OutputDir   string `json:"output_dir,omitempty"`
}

// FeatureTableInfo describes one persisted table.
type FeatureTableInfo struct {
	Sensor string `json:"sensor"`
	Path   string `json:"path"`
	Rows   int    `json:"rows"`
}

// BuildFeaturesResponse reports what a build wrote.
type BuildFeaturesResponse struct {
	Acquisitions int                `json:"acquisitions"`
	Empty        bool               `json:"empty"`
	Tables       []FeatureTableInfo `json:"tables"`
}

// AnalyzeRequest asks for a feature importance analysis.
type AnalyzeRequest struct {
	FeaturesDir string           `json:"features_dir,omitempty"`
	Algorithm   string           `json:"algorithm"`
	Sensors     []SensorSelector `json:"sensors,omitempty"`
}

// AnalyzeResponse carries the status and, on success, the report.
type AnalyzeResponse struct {
	Status     string           `json:"status"`
	Valid      bool             `json:"valid"`
	Unresolved []SensorSelector `json:"unresolved,omitempty"`
	Skipped    []string         `json:"skipped,omitempty"`
	Summary    string           `json:"summary,omitempty"`
	Report     *models.Report   `json:"report,omitempty"`
	Cached     bool             `json:"cached"`
}

// ResolveSensorsRequest maps selectors to table paths without analysing.
type ResolveSensorsRequest struct {
	FeaturesDir string           `json:"features_dir,omitempty"`
	Sensors     []SensorSelector `json:"sensors,omitempty"`
}

// ResolveSensorsResponse is the resolver result.
type ResolveSensorsResponse struct {
	AllValid   bool             `json:"all_valid"`
	Paths      []string         `json:"paths"`
	Unresolved []SensorSelector `json:"unresolved,omitempty"`
}

// DispatchRequest forwards a router intent, as emitted by the router model.
type DispatchRequest struct {
	Intent json.RawMessage `json:"intent"`
}

// DispatchResponse is what the responder needs to answer the user.
type DispatchResponse struct {
	Flag       string          `json:"flag"`
	Category   string          `json:"category"`
	ToolOutput string          `json:"tool_output,omitempty"`
	Figures    []models.Figure `json:"figures,omitempty"`
}

// HealthRequest is empty.
type HealthRequest struct{}

// HealthResponse reports serving state and recent analysis latency.
type HealthResponse struct {
	Status           string  `json:"status"`
	Analyses         int     `json:"analyses"`
	AnalysisP95Milli float64 `json:"analysis_p95_ms"`
}
