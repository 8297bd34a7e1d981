package models

// AcquisitionTask is the only input of one corpus worker task.
type AcquisitionTask struct {
	Path  string
	Name  string
	Label Label
}

// Metadata mirrors an acquisition's metadata.json.
type Metadata struct {
	SessionInfo SessionInfo           `json:"session_info"`
	Sensors     map[string]SensorInfo `json:"sensors"`
}

// SessionInfo describes the recording session.
type SessionInfo struct {
	Condition     string `json:"condition"`
	FaultDetail   string `json:"fault_detail"`
	AcquisitionID string `json:"acquisition_id"`
}

// SensorInfo describes one sensor key inside an acquisition.
type SensorInfo struct {
	FileName       string   `json:"file_name"`
	SensorName     string   `json:"sensor_name"`
	SensorType     string   `json:"sensor_type"`
	Units          string   `json:"units"`
	Columns        []string `json:"columns"`
	SamplingRateHz *float64 `json:"sampling_rate_hz"`
	IsActive       bool     `json:"is_active"`
	Sensitivity    float64  `json:"sensitivity"`
}

// DeclaredRate returns the metadata sampling rate, or 0 when absent or non-positive.
func (s SensorInfo) DeclaredRate() float64 {
	if s.SamplingRateHz == nil || *s.SamplingRateHz <= 0 {
		return 0
	}
	return *s.SamplingRateHz
}

// RowMeta is the provenance replicated onto every feature row of an acquisition.
type RowMeta struct {
	Condition     string
	FaultDetail   string
	Label         Label
	AcquisitionID string
}

// Persisted metadata column names, in output order.
const (
	ColumnCondition     = "Condition_Type"
	ColumnFaultDetail   = "Fault_Detail"
	ColumnBinaryLabel   = "Binary_Label"
	ColumnAcquisitionID = "Acquisition_ID"
)

// MetaColumns lists the metadata columns appended after the feature columns.
var MetaColumns = []string{ColumnCondition, ColumnFaultDetail, ColumnBinaryLabel, ColumnAcquisitionID}
