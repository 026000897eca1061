package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BlobBackendFS  = "fs"
	BlobBackendGCS = "gcs"

	AnalyzeModeSync  = "sync"
	AnalyzeModeAsync = "async"

	TransportLocal       = "local"
	TransportCloudEvents = "cloudevents"

	OCREngineCLI       = "cli"
	OCREngineGosseract = "gosseract"
)

const defaultSQLiteDSN = "file:docs.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Blob     BlobConfig
	OCR      OCRConfig
	Dispatch DispatchConfig
	Worker   WorkerConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxFileSize     int64
	AllowedOrigins  []string
}

// BlobConfig selects where uploaded bytes live
type BlobConfig struct {
	Backend      string
	DocumentsDir string
	GCSBucket    string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine        string
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	PSM           int
	OEM           int
}

// DispatchConfig controls how analysis tasks are executed
type DispatchConfig struct {
	Mode      string
	Timeout   time.Duration
	Transport string
	Workers   int
	QueueSize int
	WorkerURL string
	Retries   int
}

// WorkerConfig holds settings for the remote OCR worker process
type WorkerConfig struct {
	Port       string
	HealthAddr string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	driver := strings.ToLower(getEnv("DB_DRIVER", DriverSQLite))
	dsnDefault := ""
	if driver == DriverSQLite {
		dsnDefault = defaultSQLiteDSN
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:           driver,
			DSN:              getEnv("DB_URL", dsnDefault),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 5*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 15*time.Second),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8000"),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 3*time.Minute),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxFileSize:     getEnvAsInt64("MAX_FILE_SIZE", 20<<20),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Blob: BlobConfig{
			Backend:      strings.ToLower(getEnv("BLOB_BACKEND", BlobBackendFS)),
			DocumentsDir: getEnv("DOCUMENTS_DIR", "documents"),
			GCSBucket:    getEnv("GCS_BUCKET", ""),
		},
		OCR: OCRConfig{
			Engine:        strings.ToLower(getEnv("OCR_ENGINE", OCREngineCLI)),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			PSM:           getEnvAsInt("OCR_PSM", 0),
			OEM:           getEnvAsInt("OCR_OEM", 0),
		},
		Dispatch: DispatchConfig{
			Mode:      strings.ToLower(getEnv("ANALYZE_MODE", AnalyzeModeSync)),
			Timeout:   getEnvAsDuration("ANALYZE_TIMEOUT", 2*time.Minute),
			Transport: strings.ToLower(getEnv("DISPATCH_TRANSPORT", TransportLocal)),
			Workers:   getEnvAsInt("DISPATCH_WORKERS", 4),
			QueueSize: getEnvAsInt("DISPATCH_QUEUE_SIZE", 256),
			WorkerURL: getEnv("WORKER_URL", ""),
			Retries:   getEnvAsInt("WORKER_RETRIES", 3),
		},
		Worker: WorkerConfig{
			Port:       getEnv("WORKER_PORT", "8081"),
			HealthAddr: getEnv("WORKER_HEALTH_ADDR", ":9091"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("DB_DRIVER", c.Database.Driver, OneOf(DriverSQLite, DriverPostgres))
	v.Field("DB_URL", c.Database.DSN, Required)
	v.Field("HTTP_ADDR", c.Server.Addr, Required)
	v.Check(c.Server.MaxFileSize > 0, "MAX_FILE_SIZE", c.Server.MaxFileSize, "must be positive")
	v.Field("BLOB_BACKEND", c.Blob.Backend, OneOf(BlobBackendFS, BlobBackendGCS))
	if c.Blob.Backend == BlobBackendFS {
		v.Field("DOCUMENTS_DIR", c.Blob.DocumentsDir, Required)
	}
	if c.Blob.Backend == BlobBackendGCS {
		v.Field("GCS_BUCKET", c.Blob.GCSBucket, Required)
	}
	v.Field("OCR_ENGINE", c.OCR.Engine, OneOf(OCREngineCLI, OCREngineGosseract))
	// gosseract always initializes tesseract with its default engine mode
	v.Check(c.OCR.Engine != OCREngineGosseract || c.OCR.OEM == 0, "OCR_OEM", c.OCR.OEM, "is only supported by the cli engine")
	v.Field("ANALYZE_MODE", c.Dispatch.Mode, OneOf(AnalyzeModeSync, AnalyzeModeAsync))
	v.Check(c.Dispatch.Timeout > 0, "ANALYZE_TIMEOUT", c.Dispatch.Timeout, "must be positive")
	v.Field("DISPATCH_TRANSPORT", c.Dispatch.Transport, OneOf(TransportLocal, TransportCloudEvents))
	if c.Dispatch.Transport == TransportCloudEvents {
		v.Field("WORKER_URL", c.Dispatch.WorkerURL, Required)
	}

	if v.HasErrors() {
		return NewAppError(KindConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
