package telemetry

// AxleLimits maps a 1-based axle position onto the statutory maximum weight for that position.
// Positions that are not in `Positions` fall back to `Default`, and then to DefaultAxleLimits.
type AxleLimits struct {
	Positions map[int]float64 `json:"positions" yaml:"positions"`
	Default   float64         `json:"default" yaml:"default"`
}

// DefaultAxleLimits is a five axle tractor-trailer: a steering axle, a drive tandem and a trailer tandem.
var DefaultAxleLimits = AxleLimits{
	Positions: map[int]float64{
		1: 12000,
		2: 34000,
		3: 34000,
		4: 34000,
		5: 34000,
	},
	Default: 20000,
}

// MaxLegal returns the limit for the given axle position. Anything left unset, including the whole table, falls back
// to DefaultAxleLimits.
func (l AxleLimits) MaxLegal(position int) float64 {
	if limit, ok := l.Positions[position]; ok && limit > 0 {
		return limit
	}
	if l.Default > 0 {
		return l.Default
	}
	return DefaultAxleLimits.MaxLegal(position)
}

// Readings converts the ordered axle weights into axle readings, numbering positions from 1.
func (l AxleLimits) Readings(weights []float64) []AxleWeightReading {
	readings := make([]AxleWeightReading, 0, len(weights))
	for i, weight := range weights {
		position := i + 1
		readings = append(readings, AxleWeightReading{
			Position: position,
			Weight:   weight,
			MaxLegal: l.MaxLegal(position),
		})
	}
	return readings
}
