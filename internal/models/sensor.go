package models

import (
	"fmt"
	"strings"
)

// SensorKey names one measurement channel of one physical sensor, e.g. IIS3DWB_ACC.
type SensorKey struct {
	Name string
	Type string
}

// String renders the key as {name}_{type}.
func (k SensorKey) String() string {
	return k.Name + "_" + k.Type
}

// ParseSensorKey splits a file stem on its first underscore. Stems without an
// underscore, or with an empty half, are rejected.
func ParseSensorKey(stem string) (SensorKey, error) {
	name, typ, ok := strings.Cut(stem, "_")
	if !ok || name == "" || typ == "" {
		return SensorKey{}, fmt.Errorf("sensor key %q: expected NAME_TYPE", stem)
	}
	return SensorKey{Name: name, Type: typ}, nil
}

// Label is the binary class of an acquisition.
type Label string

const (
	LabelOK Label = "OK"
	LabelKO Label = "KO"
)

// Labels lists the class folders expected under a dataset root.
var Labels = []Label{LabelOK, LabelKO}

// ParseLabel accepts exactly "OK" or "KO".
func ParseLabel(s string) (Label, bool) {
	switch Label(s) {
	case LabelOK, LabelKO:
		return Label(s), true
	default:
		return "", false
	}
}

// RequestKind selects which resolution rule applies to a SensorRequest.
type RequestKind int

const (
	// RequestAll matches every table.
	RequestAll RequestKind = iota
	// RequestByType matches every table of one sensor type, across names.
	RequestByType
	// RequestByName matches every table of one sensor name, across types.
	RequestByName
	// RequestExact matches the single {name}_{type} table.
	RequestExact
)

func (k RequestKind) String() string {
	switch k {
	case RequestAll:
		return "all"
	case RequestByType:
		return "by_type"
	case RequestByName:
		return "by_name"
	case RequestExact:
		return "exact"
	default:
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
}

// SensorRequest is one entry of a user's target-sensor list.
type SensorRequest struct {
	Kind RequestKind
	Name string
	Type string
}

// AllSensors requests every available table.
func AllSensors() SensorRequest { return SensorRequest{Kind: RequestAll} }

// ByType requests every table with the given sensor type.
func ByType(typ string) SensorRequest { return SensorRequest{Kind: RequestByType, Type: typ} }

// ByName requests every table of the given sensor name.
func ByName(name string) SensorRequest { return SensorRequest{Kind: RequestByName, Name: name} }

// Exact requests the table for one name/type pair.
func Exact(name, typ string) SensorRequest {
	return SensorRequest{Kind: RequestExact, Name: name, Type: typ}
}

// RequestFromPair builds a request from an optional name and type, where the
// empty string means "absent".
func RequestFromPair(name, typ string) SensorRequest {
	switch {
	case name == "" && typ == "":
		return AllSensors()
	case name == "":
		return ByType(typ)
	case typ == "":
		return ByName(name)
	default:
		return Exact(name, typ)
	}
}

// ParseSensorRequest parses the CLI form: NAME_TYPE, NAME_ (name only), _TYPE
// (type only) or a bare NAME.
func ParseSensorRequest(s string) SensorRequest {
	name, typ, ok := strings.Cut(s, "_")
	if !ok {
		return RequestFromPair(s, "")
	}
	return RequestFromPair(name, typ)
}

// String renders the request in the CLI form understood by ParseSensorRequest.
func (r SensorRequest) String() string {
	switch r.Kind {
	case RequestAll:
		return "_"
	case RequestByType:
		return "_" + r.Type
	case RequestByName:
		return r.Name + "_"
	default:
		return r.Name + "_" + r.Type
	}
}
