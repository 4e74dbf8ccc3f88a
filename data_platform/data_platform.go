package dataplatform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/weighcapture/metrics"
	"github.com/cepro/weighcapture/repository"
	"github.com/cepro/weighcapture/telemetry"
)

const (
	// uploadChunkLimit defines how many calibrations we can upload in one supabase HTTP request
	uploadChunkLimit = 100

	defaultUploadInterval = time.Second * 30
)

// Uploader sends calibration records to the data platform.
type Uploader interface {
	UploadCalibrations(records []telemetry.CalibrationRecord) error
}

// CalibrationLog handles the streaming of calibration records to Supabase.
// Put new records onto the Records channel, they will be bufferred on disk in a SQLite database before being uploaded.
type CalibrationLog struct {
	Records chan telemetry.CalibrationRecord

	repository     *repository.Repository
	uploader       Uploader
	uploadInterval time.Duration
	logger         *slog.Logger
}

func New(uploader Uploader, bufferRepositoryFilename string, uploadInterval time.Duration) (*CalibrationLog, error) {

	repository, err := repository.New(bufferRepositoryFilename)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}

	if uploadInterval <= 0 {
		uploadInterval = defaultUploadInterval
	}

	return &CalibrationLog{
		Records:        make(chan telemetry.CalibrationRecord, 25), // a small buffer to allow SQLite to catch up in case the disk is slow
		repository:     repository,
		uploader:       uploader,
		uploadInterval: uploadInterval,
		logger:         slog.Default().With("component", "calibration_log"),
	}, nil
}

// Run loops until the context is cancelled, storing calibration records as they arrive and periodically uploading them.
func (d *CalibrationLog) Run(ctx context.Context) {

	uploadTicker := time.NewTicker(d.uploadInterval)
	defer uploadTicker.Stop()
	defer d.repository.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case record := <-d.Records:
			err := d.repository.AddCalibration(record)
			if err != nil {
				d.logger.Error("failed to persist calibration record", "error", err, "device_id", record.DeviceID)
				continue
			}
			d.logger.Debug("Stored calibration record", "device_id", record.DeviceID)

		case <-uploadTicker.C:
			d.attemptUpload()
		}
	}
}

// attemptUpload attempts to upload the calibration records from the repository.
func (d *CalibrationLog) attemptUpload() {

	// first attempt to upload any new records that have not been seen before, then any old records that have already
	// failed an upload at least once
	for _, fresh := range []bool{true, false} {
		calibrations, err := d.repository.GetCalibrations(uploadChunkLimit, fresh)
		if err != nil {
			d.logger.Error("failed to query calibrations", "fresh", fresh, "error", err)
			continue
		}
		if len(calibrations) == 0 {
			continue
		}
		err = d.handleCalibrations(calibrations)
		if err != nil {
			d.logger.Error("failed to handle calibrations", "fresh", fresh, "error", err)
		}
	}
}

// handleCalibrations attempts to upload the given calibrations. If successfull, it deletes them from the database, if
// unsuccessful, it increments the 'upload attempt count' column and leaves them in the database for another time.
func (d *CalibrationLog) handleCalibrations(calibrations []repository.StoredCalibration) error {

	records := make([]telemetry.CalibrationRecord, 0, len(calibrations))
	for _, c := range calibrations {
		records = append(records, c.CalibrationRecord)
	}

	uploadErr := d.uploader.UploadCalibrations(records)
	metrics.CalibrationUpload(uploadErr == nil)
	if uploadErr != nil {
		uploadErr := fmt.Errorf("upload failed: %w", uploadErr)
		errInc := d.repository.IncrementUploadAttemptCount(calibrations)
		if errInc != nil {
			return fmt.Errorf("%w: increment upload attempt count: %w", uploadErr, errInc)
		}
		return uploadErr
	}

	// an upload that succeeds followed by a failed delete will upload the records again, the table's primary key
	// rejects the duplicates
	deleteErr := d.repository.DeleteCalibrations(calibrations)
	if deleteErr != nil {
		return fmt.Errorf("delete calibrations: %w", deleteErr)
	}

	d.logger.Info("Uploaded calibrations", "db_records", len(calibrations))

	return nil
}
