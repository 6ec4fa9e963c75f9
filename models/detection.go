package models

import (
	"time"
)

// Run groups the detections of one batch, watch event or web job.
type Run struct {
	ID         string `gorm:"primaryKey;size:36"`
	CreatedAt  time.Time
	Source     string `gorm:"size:32;not null"` // cli, watch or web
	Total      int
	Successful int
	Failed     int
	Detections []Detection `gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Detection is the audit record for one photo. Failed rows are kept so they can be reviewed.
type Detection struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	RunID          string  `gorm:"size:36;index;not null"`
	SourcePath     string  `gorm:"size:1024"`
	OriginalName   string  `gorm:"size:255;not null"`
	NewName        string  `gorm:"size:255"`
	SiteNumber     string  `gorm:"size:64;index"`
	ArtifactNumber string  `gorm:"type:text;index"` // several rows joined with "_"
	Confidence     float64
	Success        bool   `gorm:"default:false;index"`
	Message        string `gorm:"size:512"`
}
