package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	S3        S3Config
	Log       LogConfig
	CORS      CORSConfig
	Queue     QueueConfig
	Pipeline  PipelineConfig
	Tables    TablesConfig
	Source    SourceConfig
	Inference InferenceConfig
	OCR       OCRConfig
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// MaxThreads caps the worker pool; 0 uses GOMAXPROCS, 1 disables slicing.
	MaxThreads   int           `mapstructure:"max_threads"`
	MinSliceSize int           `mapstructure:"min_slice_size"`
	MaxSlices    int           `mapstructure:"max_slices"`
	SliceTimeout time.Duration `mapstructure:"slice_timeout"`
	Render       bool          `mapstructure:"render"`
	RenderDir    string        `mapstructure:"render_dir"`
}

// TablesConfig holds table detection and recognition settings.
type TablesConfig struct {
	Margin             float64 `mapstructure:"margin"`
	Correction         float64 `mapstructure:"correction"`
	DetectionThreshold float64 `mapstructure:"detection_threshold"`
	StructureThreshold float64 `mapstructure:"structure_threshold"`
	BatchSize          int     `mapstructure:"batch_size"`
	MaxDetectSide      int     `mapstructure:"max_detect_side"`
}

// SourceConfig holds document reading settings.
type SourceConfig struct {
	DPI float64 `mapstructure:"dpi"`
}

// InferenceProviderConfig holds settings for a single table model server.
type InferenceProviderConfig struct {
	Provider    string `mapstructure:"provider"`
	Endpoint    string `mapstructure:"endpoint"`
	APIKey      string `mapstructure:"api_key"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

// InferenceConfig holds the table model servers, tried in order.
type InferenceConfig struct {
	Primary   InferenceProviderConfig `mapstructure:"primary"`
	Secondary InferenceProviderConfig `mapstructure:"secondary"`
}

// SecondaryConfig returns the secondary provider config, or nil if not configured.
func (c *InferenceConfig) SecondaryConfig() *InferenceProviderConfig {
	if c.Secondary.Provider != "" {
		return &c.Secondary
	}
	return nil
}

// OCRConfig holds cell text recognition settings.
type OCRConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Language string `mapstructure:"language"`
}

// QueueConfig holds conversion queue worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	MaxRetries       int `mapstructure:"max_retries"`
	Concurrency      int `mapstructure:"concurrency"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flags registered by Flags to config keys.
var flagKeys = map[string]string{
	"log-level":           "log.level",
	"log-format":          "log.format",
	"max-threads":         "pipeline.max_threads",
	"min-slice-size":      "pipeline.min_slice_size",
	"max-slices":          "pipeline.max_slices",
	"slice-timeout":       "pipeline.slice_timeout",
	"render":              "pipeline.render",
	"render-dir":          "pipeline.render_dir",
	"batch-size":          "tables.batch_size",
	"detection-threshold": "tables.detection_threshold",
	"structure-threshold": "tables.structure_threshold",
	"dpi":                 "source.dpi",
	"inference-endpoint":  "inference.primary.endpoint",
	"ocr":                 "ocr.enabled",
	"ocr-language":        "ocr.language",
}

// Flags registers the command-line overrides understood by Load.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "optional config file (yaml, json or toml)")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "console", "log format: console or json")
	fs.Int("max-threads", 0, "worker cap; 0 uses all CPUs, 1 disables page slicing")
	fs.Int("min-slice-size", 100, "minimum pages per slice")
	fs.Int("max-slices", 12, "target number of slices for large documents")
	fs.Duration("slice-timeout", 0, "per-slice deadline; 0 waits forever")
	fs.Bool("render", false, "write debug overlays of renderable stages")
	fs.String("render-dir", "renders", "directory for debug overlays")
	fs.Int("batch-size", 10, "pages per detector call; 0 sends all pages at once")
	fs.Float64("detection-threshold", 0.9, "table detection confidence threshold")
	fs.Float64("structure-threshold", 0.75, "table structure confidence threshold")
	fs.Float64("dpi", 150, "resolution of pages without an embedded image")
	fs.String("inference-endpoint", "", "table model server base URL")
	fs.Bool("ocr", false, "read cell text with tesseract")
	fs.String("ocr-language", "eng", "tesseract language")
}

// Load reads configuration from environment variables with the FOLIO_ prefix,
// an optional config file and, when fs is not nil, the flags registered by
// Flags. Changed flags take precedence over the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Bind environment variables explicitly for nested keys
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key, "FOLIO_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	configFile := os.Getenv("FOLIO_CONFIG")
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			configFile = f.Value.String()
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if FOLIO_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("FOLIO_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		MaxRetries:       v.GetInt("queue.max_retries"),
		Concurrency:      v.GetInt("queue.concurrency"),
	}
	cfg.Pipeline = PipelineConfig{
		MaxThreads:   v.GetInt("pipeline.max_threads"),
		MinSliceSize: v.GetInt("pipeline.min_slice_size"),
		MaxSlices:    v.GetInt("pipeline.max_slices"),
		SliceTimeout: v.GetDuration("pipeline.slice_timeout"),
		Render:       v.GetBool("pipeline.render"),
		RenderDir:    v.GetString("pipeline.render_dir"),
	}
	cfg.Tables = TablesConfig{
		Margin:             v.GetFloat64("tables.margin"),
		Correction:         v.GetFloat64("tables.correction"),
		DetectionThreshold: v.GetFloat64("tables.detection_threshold"),
		StructureThreshold: v.GetFloat64("tables.structure_threshold"),
		BatchSize:          v.GetInt("tables.batch_size"),
		MaxDetectSide:      v.GetInt("tables.max_detect_side"),
	}
	cfg.Source = SourceConfig{DPI: v.GetFloat64("source.dpi")}
	cfg.Inference = InferenceConfig{
		Primary: InferenceProviderConfig{
			Provider:    v.GetString("inference.primary.provider"),
			Endpoint:    v.GetString("inference.primary.endpoint"),
			APIKey:      v.GetString("inference.primary.api_key"),
			TimeoutSecs: v.GetInt("inference.primary.timeout_secs"),
		},
		Secondary: InferenceProviderConfig{
			Provider:    v.GetString("inference.secondary.provider"),
			Endpoint:    v.GetString("inference.secondary.endpoint"),
			APIKey:      v.GetString("inference.secondary.api_key"),
			TimeoutSecs: v.GetInt("inference.secondary.timeout_secs"),
		},
	}
	cfg.OCR = OCRConfig{
		Enabled:  v.GetBool("ocr.enabled"),
		Language: v.GetString("ocr.language"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "folio")
	v.SetDefault("db.password", "folio_secret")
	v.SetDefault("db.name", "folio_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "folio-documents")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.max_file_size_mb", 200)
	v.SetDefault("s3.presign_expiry", 3600)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Queue defaults
	v.SetDefault("queue.poll_interval_secs", 10)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.concurrency", 2)

	// Pipeline defaults
	v.SetDefault("pipeline.max_threads", 0)
	v.SetDefault("pipeline.min_slice_size", 100)
	v.SetDefault("pipeline.max_slices", 12)
	v.SetDefault("pipeline.slice_timeout", "0s")
	v.SetDefault("pipeline.render", false)
	v.SetDefault("pipeline.render_dir", "renders")

	// Table defaults
	v.SetDefault("tables.margin", 25)
	v.SetDefault("tables.correction", 3)
	v.SetDefault("tables.detection_threshold", 0.9)
	v.SetDefault("tables.structure_threshold", 0.75)
	v.SetDefault("tables.batch_size", 10)
	v.SetDefault("tables.max_detect_side", 0)

	v.SetDefault("source.dpi", 150)

	// Inference defaults
	v.SetDefault("inference.primary.provider", "tatr")
	v.SetDefault("inference.primary.endpoint", "http://localhost:8000")
	v.SetDefault("inference.primary.api_key", "")
	v.SetDefault("inference.primary.timeout_secs", 120)
	v.SetDefault("inference.secondary.provider", "")
	v.SetDefault("inference.secondary.endpoint", "")
	v.SetDefault("inference.secondary.api_key", "")
	v.SetDefault("inference.secondary.timeout_secs", 120)

	// OCR defaults
	v.SetDefault("ocr.enabled", false)
	v.SetDefault("ocr.language", "eng")
}

func (c *Config) validate() error {
	var errs []error
	if c.Pipeline.MaxThreads < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_threads must be >= 0, got %d", c.Pipeline.MaxThreads))
	}
	if c.Pipeline.MinSliceSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.min_slice_size must be >= 1, got %d", c.Pipeline.MinSliceSize))
	}
	if c.Pipeline.MaxSlices < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_slices must be >= 1, got %d", c.Pipeline.MaxSlices))
	}
	for name, th := range map[string]float64{
		"tables.detection_threshold": c.Tables.DetectionThreshold,
		"tables.structure_threshold": c.Tables.StructureThreshold,
	} {
		if th < 0 || th > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %g", name, th))
		}
	}
	return errors.Join(errs...)
}
