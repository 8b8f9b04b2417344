// Package notify delivers the end-of-run attendance report.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirhossein5/facecheck/internal/config"
	"github.com/amirhossein5/facecheck/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, records []models.AttendanceRecord) error
}

// New builds the notifier selected by cfg.Notifier.
func New(cfg *config.Config, logger *slog.Logger) (Notifier, error) {
	switch cfg.Notifier {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "smtp":
		n, err := NewSMTPNotifier(cfg.SMTP, cfg.AdminEmail)
		if err != nil {
			return nil, err
		}
		return n, nil
	case "kafka":
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		n, err := NewKafkaNotifier(cfg.Kafka, loc)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported notifier: %s", cfg.Notifier)
	}
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, records []models.AttendanceRecord) error {
	n.logger.Info("attendance report", "records", len(records))
	for _, r := range records {
		n.logger.Debug("attendance record",
			"subject", r.SubjectIdentifier,
			"name", r.DisplayName,
			"time", r.Timestamp.Format(timeLayout),
			"location", r.Location,
			"status", r.Status,
		)
	}
	return nil
}
