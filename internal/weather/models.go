package weather

import (
	"time"
)

// ParameterTemperature is the observation parameter requested from providers.
const ParameterTemperature = "temperature"

// Observation is a single temperature reading for a location.
type Observation struct {
	Location    string    `json:"location" db:"location"`
	Temperature float64   `json:"temperature" db:"temperature"`
	Timestamp   time.Time `json:"time" db:"time"` // always UTC
}

// Batch is a group of readings returned together by a provider.
// Times and Values are aligned by position.
type Batch struct {
	Times  []time.Time
	Values []float64
}

// Len returns the number of complete (time, value) pairs in the batch.
func (b Batch) Len() int {
	if len(b.Times) < len(b.Values) {
		return len(b.Times)
	}
	return len(b.Values)
}

// Observations pairs times with values for loc, stopping at the shorter slice.
func (b Batch) Observations(loc string) []Observation {
	n := b.Len()
	out := make([]Observation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Observation{
			Location:    loc,
			Temperature: b.Values[i],
			Timestamp:   b.Times[i].UTC(),
		})
	}
	return out
}
