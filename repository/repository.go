package repository

import (
	"fmt"

	"github.com/cepro/weighcapture/telemetry"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// repository stores calibration records to the local file system (sqlite) before they are uploaded to Supabase.
type Repository struct {
	db *gorm.DB
}

func New(path string) (*Repository, error) {

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Migrate the schema
	err = db.AutoMigrate(&StoredCalibration{})
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{
		db: db,
	}, nil
}

func (r *Repository) AddCalibration(record telemetry.CalibrationRecord) error {
	calibration := newStoredCalibration(record)
	result := r.db.Create(&calibration)
	return result.Error
}

func (r *Repository) DeleteCalibrations(calibrations []StoredCalibration) error {
	if len(calibrations) == 0 {
		return nil
	}
	result := r.db.Where("id IN ?", ids(calibrations)).Delete(&StoredCalibration{})
	return result.Error
}

// GetCalibrations returns up to `limit` calibrations. Fresh calibrations have never been uploaded, the others have
// failed to upload at least once.
func (r *Repository) GetCalibrations(limit int, fresh bool) ([]StoredCalibration, error) {
	var calibrations []StoredCalibration

	query := r.db.Limit(limit).Order("upload_attempt_count asc, timestamp desc")
	if fresh {
		query = query.Where("upload_attempt_count = ?", 0)
	} else {
		query = query.Where("upload_attempt_count > ?", 0)
	}
	result := query.Find(&calibrations)
	if result.Error != nil {
		return nil, result.Error
	}
	return calibrations, nil
}

func (r *Repository) IncrementUploadAttemptCount(calibrations []StoredCalibration) error {
	if len(calibrations) == 0 {
		return nil
	}
	result := r.db.Model(&StoredCalibration{}).
		Where("id IN ?", ids(calibrations)).
		UpdateColumn("upload_attempt_count", gorm.Expr("upload_attempt_count + ?", 1))
	return result.Error
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
