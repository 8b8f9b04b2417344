// Package attendance is the gorm backed Attendance Store.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/amirhossein5/facecheck/internal/models"
)

var ErrDuplicateAttendance = errors.New("attendance already recorded for this day")

type Store struct {
	db  *gorm.DB
	loc *time.Location
}

// New returns a store whose calendar days are computed in loc.
func New(db *gorm.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

func (s *Store) dayKey(t time.Time) string {
	return t.In(s.loc).Format(models.DayLayout)
}

// HasRecordOn reports whether subject already has a record on the calendar
// day containing day.
func (s *Store) HasRecordOn(ctx context.Context, subject string, day time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AttendanceRecord{}).
		Where("subject_identifier = ? AND day = ?", subject, s.dayKey(day)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("query attendance: %w", err)
	}
	return count > 0, nil
}

// Insert commits record. The (subject, day) unique index makes a concurrent
// second insert for the same day fail with ErrDuplicateAttendance.
func (s *Store) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.Timestamp = record.Timestamp.In(s.loc)
	record.Day = s.dayKey(record.Timestamp)

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s on %s", ErrDuplicateAttendance, record.SubjectIdentifier, record.Day)
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// All returns every record, newest first.
func (s *Store) All(ctx context.Context) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	if err := s.db.WithContext(ctx).Order("timestamp desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// ForDay returns the records of one calendar day, oldest first.
func (s *Store) ForDay(ctx context.Context, day time.Time) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("day = ?", s.dayKey(day)).
		Order("timestamp asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list attendance for day: %w", err)
	}
	return records, nil
}

type SubjectCount struct {
	SubjectIdentifier string `json:"id"`
	DisplayName       string `json:"name"`
	Count             int64  `json:"days"`
}

// CountBySubject returns how many days each subject was marked present.
func (s *Store) CountBySubject(ctx context.Context) ([]SubjectCount, error) {
	var counts []SubjectCount
	err := s.db.WithContext(ctx).
		Model(&models.AttendanceRecord{}).
		Select("subject_identifier, max(display_name) as display_name, count(*) as count").
		Group("subject_identifier").
		Order("subject_identifier").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}
	return counts, nil
}
