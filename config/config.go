package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Ingestion
	DataDir      string        `envconfig:"DATA_DIR" default:"./data"`
	BatchSize    int           `envconfig:"BATCH_SIZE" default:"100"`
	Concurrency  int           `envconfig:"CONCURRENCY" default:"1"`
	PreUpsert    bool          `envconfig:"PRE_UPSERT" default:"false"`
	BatchTimeout time.Duration `envconfig:"BATCH_TIMEOUT" default:"10m"`
	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"5"`
	RunOnStart   bool          `envconfig:"RUN_ON_START" default:"true"`
	RunOnce      bool          `envconfig:"RUN_ONCE" default:"false"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:""`

	// Optionaler S3-Export-Feed: JSON-Exporte werden vor einem Lauf
	// aus dem Bucket ins DataDir synchronisiert.
	S3Enabled bool   `envconfig:"S3_ENABLED" default:"false"`
	S3Key     string `envconfig:"S3_KEY"`
	S3Secret  string `envconfig:"S3_SECRET"`
	S3URL     string `envconfig:"S3_URL"`
	S3Region  string `envconfig:"S3_REGION"`
	S3Bucket  string `envconfig:"S3_BUCKET"`
	S3Prefix  string `envconfig:"S3_PREFIX" default:"exports/"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
