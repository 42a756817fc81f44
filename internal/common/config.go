package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Logging    LoggingConfig
	Scan       ScanConfig
	Queue      QueueConfig
	OCR        OCRConfig
	LLM        LLMConfig
	DocumentAI DocumentAIConfig
	Gmail      GmailConfig
	IMAP       IMAPConfig
	Drive      DriveConfig
	Sheets     SheetsConfig
	SMTP       SMTPConfig
	FCM        FCMConfig
	PubSub     PubSubConfig
	Uploads    UploadsConfig
}

// DatabaseConfig holds database-related configuration.
// Driver is "postgres" or "sqlite"; DSN is a postgres URL or a sqlite path.
type DatabaseConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// ScanConfig bounds a single orchestrator run.
type ScanConfig struct {
	FirstScanLookback time.Duration
	Overlap           time.Duration
	BatchSize         int
	BatchPause        time.Duration
	TimeBudget        time.Duration
	MaxMessages       int
	Users             []string
	Interval          time.Duration
	Provider          string
	// DedupeTolerance is the largest amount gap the content rule treats as
	// the same invoice.
	DedupeTolerance decimal.Decimal
}

// QueueConfig sizes the background scan queue.
type QueueConfig struct {
	Workers     int
	Capacity    int
	JobTimeout  time.Duration
	GuardByUser bool
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	TessdataDir  string
	Languages    string
	MinTextChars int
	RenderDPI    int
	MaxImageEdge int
	PatternsFile string

	// Tesseract page segmentation and engine modes; 0 keeps its defaults.
	PSM           int
	OEM           int
	TSVConfidence bool
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

type DocumentAIConfig struct {
	ProcessorName   string
	Endpoint        string
	CredentialsFile string
}

type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenDir     string
}

type IMAPConfig struct {
	Addr     string
	Username string
	Password string
	Mailbox  string
}

type DriveConfig struct {
	RootFolderID    string
	CredentialsFile string
	LocalDir        string
}

type SheetsConfig struct {
	SpreadsheetID   string
	CredentialsFile string
	XLSXDir         string
}

type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
	Security string // starttls, tls or none; empty picks by port
}

type FCMConfig struct {
	CredentialsFile string
	TopicPrefix     string
}

type PubSubConfig struct {
	ProjectID       string
	Subscription    string
	CredentialsFile string
}

type UploadsConfig struct {
	Dir      string
	Debounce time.Duration
}

// LoadConfig loads configuration from environment variables. A .env file in the
// working directory is read first when present; real env vars win.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Scan: ScanConfig{
			FirstScanLookback: getEnvAsDuration("SCAN_FIRST_LOOKBACK", 30*24*time.Hour),
			Overlap:           getEnvAsDuration("SCAN_OVERLAP", 12*time.Hour),
			BatchSize:         getEnvAsInt("SCAN_BATCH_SIZE", 5),
			BatchPause:        getEnvAsDuration("SCAN_BATCH_PAUSE", time.Second),
			TimeBudget:        getEnvAsDuration("SCAN_TIME_BUDGET", 8*time.Minute),
			MaxMessages:       getEnvAsInt("SCAN_MAX_MESSAGES", 100),
			Users:             getEnvAsList("SCAN_USERS"),
			Interval:          getEnvAsDuration("SCAN_INTERVAL", time.Hour),
			Provider:          getEnv("MAILBOX_PROVIDER", "gmail"),
			DedupeTolerance:   getEnvAsDecimal("DEDUPE_AMOUNT_TOLERANCE", decimal.RequireFromString("0.01")),
		},
		Queue: QueueConfig{
			Workers:     getEnvAsInt("QUEUE_WORKERS", 2),
			Capacity:    getEnvAsInt("QUEUE_CAPACITY", 64),
			JobTimeout:  getEnvAsDuration("QUEUE_JOB_TIMEOUT", 10*time.Minute),
			GuardByUser: getEnvAsBool("QUEUE_GUARD_BY_USER", true),
		},
		OCR: OCRConfig{
			TessdataDir:  getEnv("TESSDATA_PREFIX", ""),
			Languages:    getEnv("OCR_LANGUAGES", "eng+spa+por+ita+fra"),
			MinTextChars: getEnvAsInt("OCR_MIN_TEXT_CHARS", 40),
			RenderDPI:    getEnvAsInt("OCR_RENDER_DPI", 150),
			MaxImageEdge: getEnvAsInt("OCR_MAX_IMAGE_EDGE", 2000),
			PatternsFile: getEnv("PATTERNS_FILE", ""),

			PSM:           getEnvAsInt("TESSERACT_PSM", 0),
			OEM:           getEnvAsInt("TESSERACT_OEM", 0),
			TSVConfidence: getEnvAsBool("OCR_TSV_CONFIDENCE", false),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		DocumentAI: DocumentAIConfig{
			ProcessorName:   getEnv("DOCAI_PROCESSOR", ""),
			Endpoint:        getEnv("DOCAI_ENDPOINT", ""),
			CredentialsFile: getEnv("DOCAI_CREDENTIALS_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		},
		Gmail: GmailConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
			TokenDir:     getEnv("GMAIL_TOKEN_DIR", "./tokens"),
		},
		IMAP: IMAPConfig{
			Addr:     getEnv("IMAP_ADDR", ""),
			Username: getEnv("IMAP_USERNAME", ""),
			Password: getEnv("IMAP_PASSWORD", ""),
			Mailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		},
		Drive: DriveConfig{
			RootFolderID:    getEnv("DRIVE_ROOT_FOLDER_ID", ""),
			CredentialsFile: getEnv("DRIVE_CREDENTIALS_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
			LocalDir:        getEnv("STORAGE_DIR", "./data/files"),
		},
		Sheets: SheetsConfig{
			SpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
			CredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
			XLSXDir:         getEnv("XLSX_DIR", "./data/sheets"),
		},
		SMTP: SMTPConfig{
			Addr:     getEnv("SMTP_ADDR", ""),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			Security: getEnv("SMTP_SECURITY", ""),
		},
		FCM: FCMConfig{
			CredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),
			TopicPrefix:     getEnv("FCM_TOPIC_PREFIX", "invoices-"),
		},
		PubSub: PubSubConfig{
			ProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
			Subscription:    getEnv("PUBSUB_SUBSCRIPTION", ""),
			CredentialsFile: getEnv("PUBSUB_CREDENTIALS_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		},
		Uploads: UploadsConfig{
			Dir:      getEnv("UPLOADS_DIR", ""),
			Debounce: getEnvAsDuration("UPLOADS_DEBOUNCE", 500*time.Millisecond),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Scan.BatchSize <= 0 {
		return NewAppError("CONFIG_ERROR", "SCAN_BATCH_SIZE must be positive", ErrInvalidInput)
	}
	if c.Scan.TimeBudget <= 0 {
		return NewAppError("CONFIG_ERROR", "SCAN_TIME_BUDGET must be positive", ErrInvalidInput)
	}
	if c.Scan.DedupeTolerance.IsNegative() {
		return NewAppError("CONFIG_ERROR", "DEDUPE_AMOUNT_TOLERANCE must not be negative", ErrInvalidInput)
	}
	if c.Scan.Provider != "gmail" && c.Scan.Provider != "imap" {
		return NewAppError("CONFIG_ERROR", "MAILBOX_PROVIDER must be gmail or imap", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}
