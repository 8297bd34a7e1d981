package catalog

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-pdm/internal/models"
	"github.com/miradorstack/mirador-pdm/internal/repo"
)

var (
	sessionInfoKeys = []string{"condition", "fault_detail", "acquisition_id"}
	sensorInfoKeys  = []string{"file_name", "sensor_name", "sensor_type", "units", "columns", "sampling_rate_hz", "is_active", "sensitivity"}
	vocabularyExts  = map[string]bool{".parquet": true, ".csv": true, ".dat": true, ".json": true}
)

// ValidateDataset checks that root follows the OK/KO layout and that every
// session carries the same files with a complete metadata.json. On failure it
// returns a reason suited for the end user.
func ValidateDataset(root string) (bool, string) {
	if _, err := os.Stat(root); err != nil {
		return false, fmt.Sprintf("Root directory does not exist: %s", root)
	}
	for _, label := range models.Labels {
		if info, err := os.Stat(filepath.Join(root, string(label))); err != nil || !info.IsDir() {
			return false, fmt.Sprintf("Missing required class folder: '%s' in root directory.", label)
		}
	}

	var sessions []string
	for _, label := range models.Labels {
		dirs, err := subdirs(filepath.Join(root, string(label)))
		if err != nil {
			return false, fmt.Sprintf("Could not list '%s': %v", label, err)
		}
		sessions = append(sessions, dirs...)
	}
	if len(sessions) == 0 {
		return false, "No acquisition (session) folders found in OK or KO."
	}

	reference := sessions[0]
	refFiles, err := visibleFiles(reference)
	if err != nil {
		return false, fmt.Sprintf("Could not list reference session '%s': %v", filepath.Base(reference), err)
	}
	if len(refFiles) == 0 {
		return false, fmt.Sprintf("The reference session '%s' is empty.", filepath.Base(reference))
	}
	if !contains(refFiles, repo.MetadataFile) {
		return false, fmt.Sprintf("Reference session '%s' is missing '%s'.", filepath.Base(reference), repo.MetadataFile)
	}

	for _, session := range sessions {
		if ok, reason := validateSession(session, refFiles); !ok {
			return false, reason
		}
	}
	return true, ""
}

func validateSession(session string, refFiles []string) (bool, string) {
	name := filepath.Base(session)
	files, err := visibleFiles(session)
	if err != nil {
		return false, fmt.Sprintf("Could not list session '%s': %v", name, err)
	}
	if missing, extra := diff(refFiles, files), diff(files, refFiles); len(missing)+len(extra) > 0 {
		return false, fmt.Sprintf("File mismatch in session '%s'. Expected exact match with reference. Missing: %v, Extra: %v", name, missing, extra)
	}

	var streams []string
	for _, f := range files {
		if strings.HasSuffix(f, ".parquet") {
			streams = append(streams, f)
		}
	}
	if len(streams) == 0 {
		return false, fmt.Sprintf("Session '%s' contains no .parquet files.", name)
	}
	for _, f := range streams {
		if !strings.Contains(strings.TrimSuffix(f, ".parquet"), "_") {
			return false, fmt.Sprintf("Invalid file naming in '%s': '%s'. Expected 'SensorName_SensorType.parquet'.", name, f)
		}
	}

	raw, err := repo.ReadRawMetadata(session)
	if err != nil {
		return false, fmt.Sprintf("Could not read metadata in '%s': %v", name, err)
	}
	info, okInfo := raw["session_info"].(map[string]any)
	sensors, okSensors := raw["sensors"].(map[string]any)
	if !okInfo || !okSensors {
		return false, fmt.Sprintf("Invalid metadata in '%s': Missing 'session_info' or 'sensors' keys.", name)
	}
	for _, k := range sessionInfoKeys {
		if _, ok := info[k]; !ok {
			return false, fmt.Sprintf("Metadata in '%s' missing session_info key: '%s'.", name, k)
		}
	}
	for _, f := range streams {
		key := strings.TrimSuffix(f, ".parquet")
		entry, ok := sensors[key].(map[string]any)
		if !ok {
			return false, fmt.Sprintf("Metadata mismatch in '%s': File '%s' exists on disk but is not defined in metadata.json['sensors'].", name, f)
		}
		for _, k := range sensorInfoKeys {
			if _, ok := entry[k]; !ok {
				return false, fmt.Sprintf("Sensor '%s' in '%s' metadata is missing key: '%s'.", key, name, k)
			}
		}
	}
	return true, ""
}

// Vocabulary lists the values a request parser may accept for a dataset.
type Vocabulary struct {
	SensorNames  []string `json:"sensor_names"`
	SensorTypes  []string `json:"sensor_types"`
	Conditions   []string `json:"conditions"`
	FaultDetails []string `json:"fault_details"`
}

// ScanVocabulary walks root collecting sensor names and types from
// Name_Type file names and conditions and fault details from every
// metadata.json. Unreadable entries below root are skipped; failing to read
// root itself is returned with an empty vocabulary.
func ScanVocabulary(root string) (Vocabulary, error) {
	names, types := map[string]bool{}, map[string]bool{}
	conditions, faults := map[string]bool{}, map[string]bool{}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		file := d.Name()
		ext := strings.ToLower(filepath.Ext(file))
		if !vocabularyExts[ext] {
			return nil
		}
		parts := strings.Split(strings.TrimSuffix(file, filepath.Ext(file)), "_")
		if len(parts) >= 2 && len(parts[0]) > 1 && len(parts[1]) > 1 {
			names[parts[0]] = true
			types[parts[1]] = true
		}
		if file == repo.MetadataFile {
			if meta, err := repo.ReadMetadata(filepath.Dir(path)); err == nil {
				if c := meta.SessionInfo.Condition; c != "" {
					conditions[c] = true
				}
				if fd := meta.SessionInfo.FaultDetail; fd != "" {
					faults[fd] = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return Vocabulary{}, fmt.Errorf("scan dataset %s: %w", root, err)
	}

	return Vocabulary{
		SensorNames:  sortedSet(names),
		SensorTypes:  sortedSet(types),
		Conditions:   sortedSet(conditions),
		FaultDetails: sortedSet(faults),
	}, nil
}

// AcquisitionFilter narrows SelectAcquisition. Empty fields match anything;
// a non-empty ID takes precedence over the other fields.
type AcquisitionFilter struct {
	ID          string
	Subset      models.Label
	Condition   string
	FaultDetail string
}

// SelectAcquisition returns one acquisition folder matching f. ID lookups try
// OK before KO; filtered lookups pick uniformly among matching sessions using
// rng.
func SelectAcquisition(root string, f AcquisitionFilter, rng *rand.Rand) (string, bool) {
	if f.ID != "" {
		for _, label := range models.Labels {
			target := filepath.Join(root, string(label), f.ID)
			if info, err := os.Stat(target); err == nil && info.IsDir() {
				return target, true
			}
		}
		return "", false
	}

	labels := models.Labels
	if f.Subset != "" {
		labels = []models.Label{f.Subset}
	}
	var candidates []string
	for _, label := range labels {
		dirs, err := subdirs(filepath.Join(root, string(label)))
		if err != nil {
			continue
		}
		for _, dir := range dirs {
			meta, err := repo.ReadMetadata(dir)
			if err != nil {
				continue
			}
			if f.Condition != "" && f.Condition != meta.SessionInfo.Condition {
				continue
			}
			if f.FaultDetail != "" && f.FaultDetail != meta.SessionInfo.FaultDetail {
				continue
			}
			candidates = append(candidates, dir)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	if rng == nil {
		return candidates[0], true
	}
	return candidates[rng.Intn(len(candidates))], true
}

// AcquisitionPresence returns the label folders that hold an acquisition
// named id.
func AcquisitionPresence(root, id string) []models.Label {
	var found []models.Label
	for _, label := range models.Labels {
		if info, err := os.Stat(filepath.Join(root, string(label), id)); err == nil && info.IsDir() {
			found = append(found, label)
		}
	}
	return found
}

// HasSensor reports whether the acquisition's metadata declares name_type.
func HasSensor(acqPath, name, typ string) bool {
	meta, err := repo.ReadMetadata(acqPath)
	if err != nil {
		return false
	}
	for k := range meta.Sensors {
		key, err := models.ParseSensorKey(k)
		if err == nil && key.Name == name && key.Type == typ {
			return true
		}
	}
	return false
}

// SensorTypes returns the sensor types the acquisition declares for name.
func SensorTypes(acqPath, name string) []string {
	meta, err := repo.ReadMetadata(acqPath)
	if err != nil {
		return nil
	}
	var types []string
	for k := range meta.Sensors {
		if key, err := models.ParseSensorKey(k); err == nil && key.Name == name {
			types = append(types, key.Type)
		}
	}
	sort.Strings(types)
	return types
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func visibleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// diff returns the elements of a missing from b.
func diff(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
