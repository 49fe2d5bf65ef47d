package models

// LiveRoute is derived per trip for the active leg. Never persisted.
type LiveRoute struct {
	Polyline       []Coordinates `json:"polyline"`
	Steps          []Step        `json:"steps"`
	TotalDistanceM float64       `json:"total_distance_m"`
	TotalDurationS float64       `json:"total_duration_s"`
}

// IsEmpty reports whether the route has nothing to show.
func (r LiveRoute) IsEmpty() bool {
	return len(r.Polyline) == 0 && len(r.Steps) == 0
}

// Step is one turn-by-turn instruction.
type Step struct {
	Instruction string      `json:"instruction"`
	DistanceM   float64     `json:"distance_m"`
	DurationS   float64     `json:"duration_s"`
	Maneuver    string      `json:"maneuver,omitempty"`
	Start       Coordinates `json:"start"`
	End         Coordinates `json:"end"`
}

// DirectionsResult is the raw answer of a directions provider.
// Status is provider specific, only "OK" means a usable route.
type DirectionsResult struct {
	Status          string
	ErrorMessage    string
	EncodedPolyline string
	Legs            []DirectionsLeg
}

type DirectionsLeg struct {
	Steps     []DirectionsStep
	DistanceM float64
	DurationS float64
}

type DirectionsStep struct {
	HTMLInstruction string
	DistanceM       float64
	DurationS       float64
	Maneuver        string
	Start           Coordinates
	End             Coordinates
}
