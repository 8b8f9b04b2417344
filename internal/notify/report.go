package notify

import (
	"encoding/csv"
	"io"

	"github.com/amirhossein5/facecheck/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

var reportHeader = []string{"ID", "Name", "Time", "Location", "Engagement"}

// WriteCSV writes records in the daily report layout.
func WriteCSV(w io.Writer, records []models.AttendanceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.SubjectIdentifier,
			r.DisplayName,
			r.Timestamp.Format(timeLayout),
			r.Location,
			r.Status,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
