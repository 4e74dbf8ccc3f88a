package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// CalibrationResult is the outcome of a calibration exchange with a provider.
// Providers without a physical offset report zero offsets (manual entry) or an accuracy figure (camera).
type CalibrationResult struct {
	Success        bool      `json:"success"`
	PreviousOffset float64   `json:"previousOffset"`
	NewOffset      float64   `json:"newOffset"`
	Timestamp      time.Time `json:"timestamp"`
	PerformedBy    string    `json:"performedBy"`
}

// CalibrationRecord ties a calibration result to the device that produced it, so it can be logged.
type CalibrationRecord struct {
	ID            uuid.UUID
	DeviceID      string
	CaptureMethod CaptureMethod
	CalibrationResult
}

func NewCalibrationRecord(deviceID string, method CaptureMethod, result CalibrationResult) CalibrationRecord {
	return CalibrationRecord{
		ID:                uuid.New(),
		DeviceID:          deviceID,
		CaptureMethod:     method,
		CalibrationResult: result,
	}
}
