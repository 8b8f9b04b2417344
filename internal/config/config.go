package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	// Storage
	DatasetDir   string `envconfig:"DATASET_DIR" default:"dataSet"`
	NamesFile    string `envconfig:"NAMES_FILE" default:"names.json"`
	ModelDir     string `envconfig:"MODEL_DIR" default:"model"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"attendance.db"`

	// Capture
	CameraDevice string `envconfig:"CAMERA_DEVICE" default:"/dev/video0"`
	CameraWidth  uint32 `envconfig:"CAMERA_WIDTH" default:"1280"`
	CameraHeight uint32 `envconfig:"CAMERA_HEIGHT" default:"720"`
	PreviewFile  string `envconfig:"PREVIEW_FILE" default:"image.jpeg"`

	// Face locators
	CascadeFile   string `envconfig:"CASCADE_FILE" default:"cascade/facefinder"`
	DlibModelsDir string `envconfig:"DLIB_MODELS_DIR" default:"face-recognition-models"`
	EnrollLocator string `envconfig:"ENROLL_LOCATOR" default:"dlib"`

	// Recognition
	SampleCount         int     `envconfig:"SAMPLE_COUNT" default:"100"`
	ConfidenceThreshold float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"55"`
	DebounceFrames      int     `envconfig:"DEBOUNCE_FRAMES" default:"10"`
	AttendanceLocation  string  `envconfig:"ATTENDANCE_LOCATION" default:"Main Entrance"`
	TimeZone            string  `envconfig:"TIMEZONE" default:"Asia/Kolkata"`

	// Notification
	Notifier   string      `envconfig:"NOTIFIER" default:"log"`
	AdminEmail string      `envconfig:"ADMIN_EMAIL"`
	SMTP       SMTPConfig  `envconfig:"SMTP"`
	Kafka      KafkaConfig `envconfig:"KAFKA"`

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8000"`
}

type SMTPConfig struct {
	Host     string `envconfig:"HOST" default:"smtp.gmail.com"`
	Port     int    `envconfig:"PORT" default:"587"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"BROKERS" default:"localhost:9092"`
	Topic   string   `envconfig:"TOPIC" default:"attendance"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.SampleCount <= 0 {
		return nil, fmt.Errorf("load config: SAMPLE_COUNT must be positive, got %d", cfg.SampleCount)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Location is the fixed zone attendance days are computed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
