package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/amirhossein5/facecheck/internal/config"
	"github.com/amirhossein5/facecheck/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Summary is the JSON value published for one report.
type Summary struct {
	Day     string          `json:"day"`
	SentAt  time.Time       `json:"sentAt"`
	Total   int             `json:"total"`
	Records []SummaryRecord `json:"records"`
}

type SummaryRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Time       time.Time `json:"time"`
	Location   string    `json:"location"`
	Engagement string    `json:"engagement"`
}

// KafkaNotifier publishes one summary message per report, keyed by day.
type KafkaNotifier struct {
	writer messageWriter
	loc    *time.Location
	now    func() time.Time
}

func NewKafkaNotifier(cfg config.KafkaConfig, loc *time.Location) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka notifier: KAFKA_BROKERS is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Gzip,
	}
	return &KafkaNotifier{writer: writer, loc: loc, now: time.Now}, nil
}

func (n *KafkaNotifier) Notify(ctx context.Context, records []models.AttendanceRecord) error {
	now := n.now().In(n.loc)
	summary := Summary{
		Day:     now.Format(models.DayLayout),
		SentAt:  now,
		Total:   len(records),
		Records: make([]SummaryRecord, 0, len(records)),
	}
	for _, r := range records {
		summary.Records = append(summary.Records, SummaryRecord{
			ID:         r.SubjectIdentifier,
			Name:       r.DisplayName,
			Time:       r.Timestamp,
			Location:   r.Location,
			Engagement: r.Status,
		})
	}

	value, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(summary.Day),
		Value: value,
		Time:  now,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
