package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/syllabridge-backend/internal/data/db"
	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/jobs/ingest"
	"github.com/yungbote/syllabridge-backend/internal/jobs/worker"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/catalog"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/duplicates"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/similarity"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/validation"
	"github.com/yungbote/syllabridge-backend/internal/platform/blob"
	"github.com/yungbote/syllabridge-backend/internal/platform/envutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/gcp"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
	"github.com/yungbote/syllabridge-backend/internal/platform/redisclient"
)

// Tunables is the YAML file shape (SYLLABRIDGE_CONFIG). Every field is
// optional; zero values fall back to package defaults.
type Tunables struct {
	Pipeline struct {
		SoftTimeout     time.Duration `yaml:"soft_timeout"`
		HardTimeout     time.Duration `yaml:"hard_timeout"`
		MaxAttempts     int           `yaml:"max_attempts"`
		RetryBackoff    time.Duration `yaml:"retry_backoff"`
		StaleAfter      time.Duration `yaml:"stale_after"`
		SweepInterval   time.Duration `yaml:"sweep_interval"`
		DecisionTimeout time.Duration `yaml:"decision_timeout"`
		AbandonAfter    time.Duration `yaml:"abandon_after"`
		Scope           string        `yaml:"scope"`
	} `yaml:"pipeline"`
	Workers struct {
		Concurrency  int           `yaml:"concurrency"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"workers"`
	Duplicates struct {
		Threshold    float64             `yaml:"threshold"`
		MaxMatches   int                 `yaml:"max_matches"`
		ScanLimit    int                 `yaml:"scan_limit"`
		CacheTTL     time.Duration       `yaml:"cache_ttl"`
		PeerCacheTTL time.Duration       `yaml:"peer_cache_ttl"`
		Weights      *similarity.Weights `yaml:"weights"`
	} `yaml:"duplicates"`
	Courses struct {
		MaxPerOwner       int    `yaml:"max_per_owner"`
		DefaultVisibility string `yaml:"default_visibility"`
	} `yaml:"courses"`
	Validation struct {
		MaxBytes int64 `yaml:"max_bytes"`
	} `yaml:"validation"`
}

type Config struct {
	Env         string
	ServiceName string
	HTTPAddr    string
	MetricsAddr string
	CORSOrigins []string

	JWTSecret       string
	SubmitRateLimit int
	SubmitRateEvery time.Duration

	DB    db.Config
	Redis redisclient.Config
	Blob  blob.Config
	OCR   gcp.DocumentConfig

	AMQPURL      string
	AMQPExchange string

	OpenAIMaxInputTokens int

	Pipeline      ingest.Config
	SweepInterval time.Duration
	Workers       worker.Config
	Duplicates    duplicates.Config
	Weights       similarity.Weights
	Catalog       catalog.Config
	Validation    validation.Config
}

// LoadConfig reads .env (if present), then the optional YAML tunables file,
// then environment variables, which win over YAML.
func LoadConfig(log *logger.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("could not load .env", "error", err)
	}

	var t Tunables
	if path := envutil.String("SYLLABRIDGE_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		log.Info("loaded tunables", "path", path)
	}
	return fromTunables(t)
}

func fromTunables(t Tunables) (Config, error) {
	cfg := Config{
		Env:         envutil.String("APP_ENV", "development"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "syllabridge-api"),
		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080"),
		MetricsAddr: envutil.String("METRICS_ADDR", ":9090"),
		CORSOrigins: splitList(envutil.String("CORS_ORIGINS", "")),

		JWTSecret:       envutil.String("JWT_SECRET_KEY", ""),
		SubmitRateLimit: envutil.Int("SUBMIT_RATE_LIMIT", 20),
		SubmitRateEvery: envutil.Duration("SUBMIT_RATE_WINDOW", time.Minute),

		DB: db.Config{
			Driver:       envutil.String("DB_DRIVER", "postgres"),
			DSN:          envutil.String("DATABASE_URL", ""),
			MaxOpenConns: envutil.Int("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: envutil.Int("DB_MAX_IDLE_CONNS", 5),
			SlowQuery:    envutil.Duration("DB_SLOW_QUERY", time.Second),
		},
		Redis: redisclient.Config{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
		},
		Blob: blob.Config{
			Backend:         envutil.String("BLOB_BACKEND", "local"),
			LocalDir:        envutil.String("BLOB_LOCAL_DIR", "./data/uploads"),
			GCSBucket:       envutil.String("GCS_BUCKET", ""),
			GCSEmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
			MinioEndpoint:   envutil.String("MINIO_ENDPOINT", ""),
			MinioAccessKey:  envutil.String("MINIO_ACCESS_KEY", ""),
			MinioSecretKey:  envutil.String("MINIO_SECRET_KEY", ""),
			MinioBucket:     envutil.String("MINIO_BUCKET", ""),
			MinioSecure:     envutil.Bool("MINIO_SECURE", false),
		},
		OCR: gcp.DocumentConfig{
			ProjectID:        envutil.String("DOCUMENTAI_PROJECT_ID", ""),
			Location:         envutil.String("DOCUMENTAI_LOCATION", "us"),
			ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", ""),
			ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", ""),
		},
		AMQPURL:              envutil.String("AMQP_URL", ""),
		AMQPExchange:         envutil.String("AMQP_EXCHANGE", ""),
		OpenAIMaxInputTokens: envutil.Int("OPENAI_MAX_INPUT_TOKENS", 12000),
	}

	p := t.Pipeline
	cfg.Pipeline = ingest.Config{
		SoftTimeout:     envutil.Duration("PIPELINE_SOFT_TIMEOUT", p.SoftTimeout),
		HardTimeout:     envutil.Duration("PIPELINE_HARD_TIMEOUT", p.HardTimeout),
		MaxAttempts:     envutil.Int("PIPELINE_MAX_ATTEMPTS", p.MaxAttempts),
		RetryBackoff:    envutil.Duration("PIPELINE_RETRY_BACKOFF", p.RetryBackoff),
		StaleAfter:      envutil.Duration("PIPELINE_STALE_AFTER", p.StaleAfter),
		DecisionTimeout: envutil.Duration("PIPELINE_DECISION_TIMEOUT", p.DecisionTimeout),
		AbandonAfter:    envutil.Duration("PIPELINE_ABANDON_AFTER", p.AbandonAfter),
	}
	if cfg.Pipeline.RetryBackoff == 0 {
		cfg.Pipeline.RetryBackoff = ingest.DefaultConfig().RetryBackoff
	}
	if raw := envutil.String("DUPLICATE_SCOPE", p.Scope); raw != "" {
		mode, err := courses.ParseScopeMode(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Pipeline.Scope = mode
	}
	cfg.SweepInterval = envutil.Duration("SWEEP_INTERVAL", p.SweepInterval)

	cfg.Workers = worker.Config{
		Concurrency:  envutil.Int("WORKER_CONCURRENCY", orInt(t.Workers.Concurrency, 4)),
		PollInterval: envutil.Duration("WORKER_POLL_INTERVAL", orDuration(t.Workers.PollInterval, time.Second)),
	}

	d := t.Duplicates
	cfg.Duplicates = duplicates.Config{
		Threshold:    envutil.Float("DUPLICATE_THRESHOLD", d.Threshold),
		MaxMatches:   envutil.Int("DUPLICATE_MAX_MATCHES", d.MaxMatches),
		ScanLimit:    envutil.Int("DUPLICATE_SCAN_LIMIT", d.ScanLimit),
		CacheTTL:     envutil.Duration("DUPLICATE_CACHE_TTL", d.CacheTTL),
		PeerCacheTTL: envutil.Duration("DUPLICATE_PEER_CACHE_TTL", d.PeerCacheTTL),
	}
	cfg.Weights = similarity.DefaultWeights()
	if d.Weights != nil {
		cfg.Weights = *d.Weights
	}
	if err := cfg.Weights.Validate(); err != nil {
		return Config{}, err
	}

	cfg.Catalog = catalog.Config{
		MaxCoursesPerOwner: envutil.Int("MAX_COURSES_PER_OWNER", t.Courses.MaxPerOwner),
		Threshold:          cfg.Duplicates.Threshold,
		DefaultVisibility:  courses.Visibility(envutil.String("COURSE_DEFAULT_VISIBILITY", t.Courses.DefaultVisibility)),
	}
	switch cfg.Catalog.DefaultVisibility {
	case "", courses.VisibilityPrivate, courses.VisibilityInstitution, courses.VisibilityPublic:
	default:
		return Config{}, fmt.Errorf("unknown course visibility %q", cfg.Catalog.DefaultVisibility)
	}

	cfg.Validation = validation.DefaultConfig()
	if mb := int64(envutil.Int("UPLOAD_MAX_BYTES", int(t.Validation.MaxBytes))); mb > 0 {
		cfg.Validation.MaxBytes = mb
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
