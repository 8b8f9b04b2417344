package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ATTENDANCE_STATUS_PRESENT = "Present"

	DayLayout = "2006-01-02"
)

type AttendanceRecord struct {
	gorm.Model
	SubjectIdentifier string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_subject_day"`
	DisplayName       string    `gorm:"type:varchar(100);not null"`
	Status            string    `gorm:"type:varchar(50)"`
	Location          string    `gorm:"type:varchar(100)"`
	Timestamp         time.Time `gorm:"not null;index"`
	Day               string    `gorm:"type:char(10);not null;uniqueIndex:idx_subject_day"`
	RunID             string    `gorm:"type:varchar(36);index"`
}

func (record *AttendanceRecord) BeforeCreate(tx *gorm.DB) error {
	if record.Status == "" {
		record.Status = ATTENDANCE_STATUS_PRESENT
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if record.Day == "" {
		record.Day = record.Timestamp.Format(DayLayout)
	}
	return nil
}
