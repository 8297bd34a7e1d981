package api

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-pdm/internal/analysis"
	"github.com/miradorstack/mirador-pdm/internal/catalog"
	"github.com/miradorstack/mirador-pdm/internal/engine"
	"github.com/miradorstack/mirador-pdm/internal/models"
)

// ToSensorRequests maps wire selectors into domain requests. A nil or empty
// slice stays empty, which the resolver treats as "every sensor".
func ToSensorRequests(sel []SensorSelector) ([]models.SensorRequest, error) {
	reqs := make([]models.SensorRequest, 0, len(sel))
	for i, s := range sel {
		name, typ := strings.TrimSpace(s.Name), strings.TrimSpace(s.Type)
		if strings.Contains(name, "_") {
			return nil, fmt.Errorf("sensors[%d].name %q must not contain '_'", i, name)
		}
		reqs = append(reqs, models.RequestFromPair(name, typ))
	}
	return reqs, nil
}

// FromSensorRequests is the inverse of ToSensorRequests.
func FromSensorRequests(reqs []models.SensorRequest) []SensorSelector {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]SensorSelector, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, SensorSelector{Name: r.Name, Type: r.Type})
	}
	return out
}

// ToBuildFeaturesResponse lists the persisted tables in key order.
func ToBuildFeaturesResponse(res engine.BuildResult) *BuildFeaturesResponse {
	resp := &BuildFeaturesResponse{Acquisitions: res.Acquisitions, Empty: res.Empty()}
	for _, key := range models.SortedKeys(res.Tables) {
		resp.Tables = append(resp.Tables, FeatureTableInfo{
			Sensor: key.String(),
			Path:   res.Tables[key],
			Rows:   res.Rows[key],
		})
	}
	return resp
}

// ToAnalyzeResponse maps an analyzer outcome. summary is attached only to
// valid outcomes.
func ToAnalyzeResponse(out analysis.Outcome, summary string) *AnalyzeResponse {
	resp := &AnalyzeResponse{
		Status:     string(out.Status),
		Valid:      out.Valid(),
		Unresolved: FromSensorRequests(out.Unresolved),
		Skipped:    append([]string(nil), out.Skipped...),
	}
	if resp.Valid {
		resp.Report = out.Report
		resp.Summary = summary
	}
	return resp
}

// ToResolveSensorsResponse maps a resolver result.
func ToResolveSensorsResponse(res catalog.Resolution) *ResolveSensorsResponse {
	paths := res.Paths
	if paths == nil {
		paths = []string{}
	}
	return &ResolveSensorsResponse{
		AllValid:   res.AllValid,
		Paths:      paths,
		Unresolved: FromSensorRequests(res.Unresolved),
	}
}
