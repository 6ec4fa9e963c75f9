package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"labelocr/models"
	"labelocr/pkg/rename"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var errNoDSN = errors.New("DB_DSN is not set")

var db *gorm.DB

// initDB connects to Postgres and migrates the audit tables when allowed.
// Migration failures are logged and ignored so a read-only role can still write rows.
func initDB(cfg Config) error {
	if cfg.DBDSN == "" {
		return errNoDSN
	}
	conn, err := gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect postgres database: %w", err)
	}
	db = conn
	if cfg.DBAutoMigrate {
		migrate()
	}
	return nil
}

func migrate() {
	// runs first so detections can reference them
	if err := db.AutoMigrate(&models.Run{}); err != nil {
		log.Printf("migration warning (runs): %v", err)
	}
	if err := db.AutoMigrate(&models.Detection{}); err != nil {
		log.Printf("migration warning (detections): %v", err)
	}
}

// gormRecorder stores renamer outcomes in the audit tables.
type gormRecorder struct {
	db     *gorm.DB
	source string
}

func (g gormRecorder) Record(runID string, outcomes []rename.Outcome) error {
	run := models.Run{ID: runID, Source: g.source, Total: len(outcomes)}
	rows := make([]models.Detection, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Success {
			run.Successful++
		} else {
			run.Failed++
		}
		rows = append(rows, models.Detection{
			RunID:          runID,
			SourcePath:     o.Source,
			OriginalName:   o.Original,
			NewName:        o.NewName,
			SiteNumber:     o.SiteNumber,
			ArtifactNumber: o.ArtifactNumber,
			Confidence:     o.Confidence,
			Success:        o.Success,
			Message:        o.Message,
		})
	}
	return g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 100).Error
	})
}

// recorderFor returns a database recorder when DB_DSN is configured, nil otherwise.
// A configured but unreachable database is logged and skipped.
func recorderFor(cfg Config, source string) rename.Recorder {
	if cfg.DBDSN == "" {
		return nil
	}
	if db == nil {
		if err := initDB(cfg); err != nil {
			log.Printf("WARN audit table disabled: %v", err)
			return nil
		}
	}
	return gormRecorder{db: db, source: source}
}

func recentDetections(limit int) ([]models.Detection, error) {
	var rows []models.Detection
	err := db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

type siteCount struct {
	SiteNumber string
	Photos     int64
}

type monthReport struct {
	Runs       int64
	Photos     int64
	Renamed    int64
	Failed     int64
	Sites      []siteCount
	FailedRows []models.Detection
}

// monthlyReport summarizes the audit tables for the month starting at month (UTC).
func monthlyReport(month time.Time) (monthReport, error) {
	var rep monthReport
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	if err := db.Model(&models.Run{}).Where("created_at >= ? AND created_at < ?", start, end).Count(&rep.Runs).Error; err != nil {
		return rep, fmt.Errorf("count runs: %w", err)
	}
	inMonth := db.Model(&models.Detection{}).Where("created_at >= ? AND created_at < ?", start, end)
	if err := inMonth.Session(&gorm.Session{}).Count(&rep.Photos).Error; err != nil {
		return rep, fmt.Errorf("count detections: %w", err)
	}
	if err := inMonth.Session(&gorm.Session{}).Where("success = ?", true).Count(&rep.Renamed).Error; err != nil {
		return rep, fmt.Errorf("count renamed: %w", err)
	}
	rep.Failed = rep.Photos - rep.Renamed
	if err := inMonth.Session(&gorm.Session{}).
		Select("site_number, COUNT(*) AS photos").
		Where("success = ?", true).
		Group("site_number").Order("site_number").
		Scan(&rep.Sites).Error; err != nil {
		return rep, fmt.Errorf("count sites: %w", err)
	}
	if err := inMonth.Session(&gorm.Session{}).Where("success = ?", false).Order("id").Find(&rep.FailedRows).Error; err != nil {
		return rep, fmt.Errorf("fetch failed rows: %w", err)
	}
	return rep, nil
}
