package repository

import "github.com/cepro/weighcapture/telemetry"

// StoredCalibration represents a calibration record that is persisted to the SQLite database, and includes a count of upload attempts.
type StoredCalibration struct {
	telemetry.CalibrationRecord
	UploadAttemptCount uint
}

func newStoredCalibration(record telemetry.CalibrationRecord) StoredCalibration {
	return StoredCalibration{
		CalibrationRecord:  record,
		UploadAttemptCount: 0,
	}
}

// ids returns the primary keys of the given calibrations
func ids(calibrations []StoredCalibration) []string {
	keys := make([]string, 0, len(calibrations))
	for _, c := range calibrations {
		keys = append(keys, c.ID.String())
	}
	return keys
}
