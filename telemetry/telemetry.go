package telemetry

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// UnitPounds is the unit every weight in a reading is expressed in.
const UnitPounds = "lb"

// CaptureMethod identifies the kind of backend that produced a reading.
type CaptureMethod string

const (
	CaptureMethodScale  CaptureMethod = "scale"
	CaptureMethodIoT    CaptureMethod = "iot"
	CaptureMethodCamera CaptureMethod = "camera"
	CaptureMethodManual CaptureMethod = "manual"
)

// Valid reports whether m is one of the known capture methods.
func (m CaptureMethod) Valid() bool {
	switch m {
	case CaptureMethodScale, CaptureMethodIoT, CaptureMethodCamera, CaptureMethodManual:
		return true
	default:
		return false
	}
}

// WeightReading holds one normalized weight observation, regardless of which backend it came from.
type WeightReading struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Unit      string    `json:"unit"`

	GrossWeight float64  `json:"grossWeight"`
	TareWeight  *float64 `json:"tareWeight"` // nil until a tare is supplied
	NetWeight   *float64 `json:"netWeight"`  // only ever written by SetTare

	AxleWeights []AxleWeightReading `json:"axleWeights"`

	Confidence    float64       `json:"confidence"` // fixed per provider class, in [0,1]
	DeviceID      string        `json:"deviceId"`
	CaptureMethod CaptureMethod `json:"captureMethod"`
	LocationData  *GeoLocation  `json:"locationData,omitempty"`

	// RawSensorData is a provider specific diagnostic payload kept for audit. It is never interpreted outside the provider.
	RawSensorData map[string]interface{} `json:"rawSensorData,omitempty"`
}

// SetTare records the tare weight and derives the net weight from it.
// A nil tare clears both the tare and the net weight.
func (r *WeightReading) SetTare(tare *float64) {
	r.TareWeight = nil
	r.NetWeight = nil
	if tare == nil {
		return
	}
	t := *tare
	net := r.GrossWeight - t
	r.TareWeight = &t
	r.NetWeight = &net
}

// Clone returns a deep copy of the reading, so that the copy can be handed out without sharing slices or maps.
func (r WeightReading) Clone() WeightReading {
	c := r
	c.AxleWeights = slices.Clone(r.AxleWeights)
	c.RawSensorData = maps.Clone(r.RawSensorData)
	if r.TareWeight != nil {
		t := *r.TareWeight
		c.TareWeight = &t
	}
	if r.NetWeight != nil {
		n := *r.NetWeight
		c.NetWeight = &n
	}
	if r.LocationData != nil {
		l := *r.LocationData
		c.LocationData = &l
	}
	return c
}

// AxleWeightReading is the portion of the total weight borne by a single axle.
type AxleWeightReading struct {
	Position int     `json:"position"` // 1-based, steering axle first
	Weight   float64 `json:"weight"`
	MaxLegal float64 `json:"maxLegal"` // statutory limit for the position, never derived from Weight
}

// Overweight returns true if the axle is carrying more than its legal limit.
func (a AxleWeightReading) Overweight() bool {
	return a.Weight > a.MaxLegal
}

// GeoLocation is where a reading was captured.
type GeoLocation struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Accuracy  float64 `json:"accuracy" yaml:"accuracy"` // radius in metres
}
