package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/obs/metrics"
	"github.com/tendant/simple-resource/pkg/resourcestore/obs/tracing"
	"github.com/tendant/simple-resource/pkg/resourcestore/presigned"
	fsstorage "github.com/tendant/simple-resource/pkg/resourcestore/storage/fs"
	gcsstorage "github.com/tendant/simple-resource/pkg/resourcestore/storage/gcs"
	memorystorage "github.com/tendant/simple-resource/pkg/resourcestore/storage/memory"
	s3storage "github.com/tendant/simple-resource/pkg/resourcestore/storage/s3"
	"go.opentelemetry.io/otel"
)

// Supported storage backends
const (
	BackendMemory = "memory"
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
)

// Config is the full configuration of a resource store deployment.
type Config struct {
	Backend  string         `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory" env-description:"Storage backend: memory, fs, s3 or gcs"`
	S3       S3Config       `yaml:"s3"`
	GCS      GCSConfig      `yaml:"gcs"`
	FS       FSConfig       `yaml:"fs"`
	Memory   MemoryConfig   `yaml:"memory"`
	Resource ResourceConfig `yaml:"resource"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type S3Config struct {
	Bucket                 string `yaml:"bucket" env:"S3_BUCKET" env-default:"resource-store"`
	Region                 string `yaml:"region" env:"S3_REGION" env-default:"us-east-2"`
	AccessKeyID            string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey        string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	Endpoint               string `yaml:"endpoint" env:"S3_ENDPOINT" env-description:"Custom endpoint for MinIO and other S3-compatible services"`
	UsePathStyle           bool   `yaml:"use_path_style" env:"S3_USE_PATH_STYLE"`
	PageSize               int32  `yaml:"page_size" env:"S3_PAGE_SIZE"`
	EnableSSE              bool   `yaml:"enable_sse" env:"S3_ENABLE_SSE"`
	SSEAlgorithm           string `yaml:"sse_algorithm" env:"S3_SSE_ALGORITHM" env-default:"AES256"`
	SSEKMSKeyID            string `yaml:"sse_kms_key_id" env:"S3_SSE_KMS_KEY_ID"`
	CreateBucketIfNotExist bool   `yaml:"create_bucket_if_not_exist" env:"S3_CREATE_BUCKET"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket" env:"GCS_BUCKET"`
	Endpoint        string `yaml:"endpoint" env:"GCS_ENDPOINT"`
	CredentialsFile string `yaml:"credentials_file" env:"GCS_CREDENTIALS_FILE"`
	PageSize        int    `yaml:"page_size" env:"GCS_PAGE_SIZE"`
	GoogleAccessID  string `yaml:"google_access_id" env:"GCS_GOOGLE_ACCESS_ID"`
	PrivateKey      string `yaml:"private_key" env:"GCS_PRIVATE_KEY"`
}

type FSConfig struct {
	BaseDir    string `yaml:"base_dir" env:"FS_BASE_DIR" env-default:"./data/resources"`
	URLPrefix  string `yaml:"url_prefix" env:"FS_URL_PREFIX" env-default:"http://localhost:8080"`
	SigningKey string `yaml:"signing_key" env:"FS_SIGNING_KEY"`
	PageSize   int    `yaml:"page_size" env:"FS_PAGE_SIZE"`
}

type MemoryConfig struct {
	PageSize int `yaml:"page_size" env:"MEMORY_PAGE_SIZE" env-default:"1000"`
}

type ResourceConfig struct {
	PrefixTemplate string        `yaml:"prefix_template" env:"RESOURCE_PREFIX_TEMPLATE" env-default:"resources/%d/"`
	Sharded        bool          `yaml:"sharded" env:"RESOURCE_PREFIX_SHARDED"`
	LinkTTL        time.Duration `yaml:"link_ttl" env:"RESOURCE_LINK_TTL" env-default:"144h"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT" env-default:"8080"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"METRICS_ENABLED"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"TRACING_ENDPOINT"`
	SampleRatio float64 `yaml:"sample_ratio" env:"TRACING_SAMPLE_RATIO" env-default:"1"`
}

func defaults() Config {
	return Config{
		Backend: BackendMemory,
		S3: S3Config{
			Bucket:       "resource-store",
			Region:       "us-east-2",
			SSEAlgorithm: "AES256",
		},
		FS: FSConfig{
			BaseDir:   "./data/resources",
			URLPrefix: "http://localhost:8080",
		},
		Memory: MemoryConfig{PageSize: memorystorage.DefaultPageSize},
		Resource: ResourceConfig{
			PrefixTemplate: resourcestore.DefaultPrefixTemplate,
			LinkTTL:        resourcestore.ClampTTL(0),
		},
		Server:  ServerConfig{Port: "8080"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{SampleRatio: 1},
	}
}

// Validate checks the settings the selected backend depends on
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("port is required")
	}

	switch c.Backend {
	case BackendMemory:
	case BackendFS:
		if c.FS.BaseDir == "" {
			return errors.New("fs backend requires FS_BASE_DIR")
		}
		if c.FS.SigningKey == "" {
			return errors.New("fs backend requires FS_SIGNING_KEY to sign download links")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("s3 backend requires S3_BUCKET")
		}
		if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
			return errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
	case BackendGCS:
		if c.GCS.Bucket == "" {
			return errors.New("gcs backend requires GCS_BUCKET")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %q (use memory, fs, s3 or gcs)", c.Backend)
	}

	if _, err := c.Prefixer(); err != nil {
		return err
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// Prefixer returns the owner prefix strategy. The sharded layout keeps the
// template's leading path as its root.
func (c *Config) Prefixer() (resourcestore.Prefixer, error) {
	p, err := resourcestore.NewFormatPrefixer(c.Resource.PrefixTemplate)
	if err != nil {
		return nil, err
	}
	if !c.Resource.Sharded {
		return p, nil
	}
	root, _, _ := strings.Cut(c.Resource.PrefixTemplate, "%d")
	return resourcestore.NewShardedPrefixer(root), nil
}

// Signer returns the download link signer of the fs backend, or nil when no
// signing key is configured.
func (c *Config) Signer() *presigned.Signer {
	if c.FS.SigningKey == "" {
		return nil
	}
	return presigned.New(
		presigned.WithSecretKey(c.FS.SigningKey),
		presigned.WithBaseURL(c.FS.URLPrefix),
		presigned.WithDefaultExpiration(resourcestore.ClampTTL(c.Resource.LinkTTL)),
	)
}

// BuildGateway constructs the configured backend. Clients are created here,
// once, and shared by every call made through the gateway.
func (c *Config) BuildGateway(ctx context.Context, logger *slog.Logger) (resourcestore.Gateway, error) {
	switch c.Backend {
	case BackendMemory:
		return memorystorage.New(memorystorage.WithPageSize(c.Memory.PageSize)), nil

	case BackendFS:
		return fsstorage.New(fsstorage.Config{
			BaseDir:  c.FS.BaseDir,
			PageSize: c.FS.PageSize,
			Signer:   c.Signer(),
		}, fsstorage.WithLogger(logger))

	case BackendS3:
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			PageSize:               c.S3.PageSize,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		}, s3storage.WithLogger(logger))

	case BackendGCS:
		return gcsstorage.New(ctx, gcsstorage.Config{
			Bucket:          c.GCS.Bucket,
			Endpoint:        c.GCS.Endpoint,
			CredentialsFile: c.GCS.CredentialsFile,
			PageSize:        c.GCS.PageSize,
			GoogleAccessID:  c.GCS.GoogleAccessID,
			PrivateKey:      []byte(c.GCS.PrivateKey),
		}, gcsstorage.WithLogger(logger))

	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", c.Backend)
	}
}

// BuildStore builds the gateway, applies the metrics and tracing decorators
// that are enabled and returns the store. reg may be nil when metrics are off.
func (c *Config) BuildStore(ctx context.Context, logger *slog.Logger, reg prometheus.Registerer) (*resourcestore.Store, error) {
	gw, err := c.BuildGateway(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s gateway: %w", c.Backend, err)
	}
	if c.Metrics.Enabled && reg != nil {
		gw = metrics.Instrument(gw, c.Backend, metrics.NewStorageMetrics(reg))
	}
	if c.Tracing.Enabled {
		gw = tracing.Trace(gw, c.Backend, otel.GetTracerProvider())
	}

	prefixer, err := c.Prefixer()
	if err != nil {
		return nil, err
	}
	return resourcestore.New(
		resourcestore.WithGateway(gw),
		resourcestore.WithPrefixer(prefixer),
		resourcestore.WithLogger(logger),
		resourcestore.WithLinkTTL(resourcestore.ClampTTL(c.Resource.LinkTTL)),
		resourcestore.WithBackendName(c.Backend),
	)
}

// Logger builds the slog logger described by the log settings.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
