package conf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	emailtypes "github.com/kingshare/transfer-backend/internal/email/types"
	"github.com/kingshare/transfer-backend/internal/pkg/database"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/minio"
	"github.com/kingshare/transfer-backend/internal/pkg/redis"
	"github.com/kingshare/transfer-backend/internal/pkg/workerpool"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KINGSHARE_AUTH_JWT_SECRET.
const EnvPrefix = "KINGSHARE"

type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Database  database.Config   `mapstructure:"database"`
	Redis     RedisConfig       `mapstructure:"redis"`
	MinIO     minio.Config      `mapstructure:"minio"`
	Log       logger.Config     `mapstructure:"log"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Email     EmailConfig       `mapstructure:"email"`
	Notify    workerpool.Config `mapstructure:"notify"`
	Transfer  TransferConfig    `mapstructure:"transfer"`
	GeoIP     GeoIPConfig       `mapstructure:"geoip"`
	RateLimit RateLimitConfig   `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type EmailConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	emailtypes.EmailConfig `mapstructure:",squash"`
}

type TransferConfig struct {
	// StorageDriver selects the transfer store: postgres or memory
	StorageDriver     string        `mapstructure:"storage_driver"`
	MaxExpirationDays int           `mapstructure:"max_expiration_days"`
	MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
	MaxFiles          int           `mapstructure:"max_files"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	PublicBaseURL     string        `mapstructure:"public_base_url"`
	StatsRecentLimit  int           `mapstructure:"stats_recent_limit"`
}

type GeoIPConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Endpoint  string        `mapstructure:"endpoint"` // %s is replaced by the IP
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Share endpoints: requests per window per client IP
	ShareMaxRequests   int `mapstructure:"share_max_requests"`
	ShareWindowSeconds int `mapstructure:"share_window_seconds"`
	// Failed password attempts per token and IP before lockout
	PasswordMaxFailures int           `mapstructure:"password_max_failures"`
	PasswordLockout     time.Duration `mapstructure:"password_lockout"`
	// In-process limiter used when redis is disabled
	LocalRPS   float64 `mapstructure:"local_rps"`
	LocalBurst int     `mapstructure:"local_burst"`
}

// LoadConfig reads the YAML file at path, then applies .env and
// KINGSHARE_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-section constraints that the per-package
// validators cannot see.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Transfer.StorageDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("transfer.storage_driver must be postgres or memory, got %q", c.Transfer.StorageDriver)
	}
	if c.Transfer.MaxExpirationDays <= 0 {
		return errors.New("transfer.max_expiration_days must be > 0")
	}
	if c.Transfer.PublicBaseURL == "" {
		return errors.New("transfer.public_base_url is required")
	}
	if c.Email.Enabled && (c.Email.SMTPHost == "" || c.Email.FromAddr == "") {
		return errors.New("email.smtp_host and email.from_addr are required when email is enabled")
	}
	if c.GeoIP.Enabled && !strings.Contains(c.GeoIP.Endpoint, "%s") {
		return errors.New("geoip.endpoint must contain %s for the IP")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})

	db := database.DefaultConfig()
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", db.DBName)
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", db.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.preparestmt", db.PrepareStmt)
	v.SetDefault("database.automigrate", db.AutoMigrate)
	v.SetDefault("database.txmaxretries", db.TxMaxRetries)

	rd := redis.DefaultConfig()
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.mode", string(rd.Mode))
	v.SetDefault("redis.addr", rd.Addr)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.pool_timeout", rd.PoolTimeout)
	v.SetDefault("redis.max_retries", rd.MaxRetries)
	v.SetDefault("redis.key_prefix", rd.KeyPrefix)

	mc := minio.DefaultConfig()
	v.SetDefault("minio.endpoint", mc.Endpoint)
	v.SetDefault("minio.region", mc.Region)
	v.SetDefault("minio.bucket", mc.Bucket)
	v.SetDefault("minio.bucket_lookup", string(mc.BucketLookup))
	v.SetDefault("minio.presign_expiry", mc.PresignExpiry)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enablecaller", lc.EnableCaller)
	v.SetDefault("log.enablestacktrace", lc.EnableStacktrace)
	v.SetDefault("log.skippaths", lc.SkipPaths)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.maxsize", lc.File.MaxSize)
	v.SetDefault("log.file.maxage", lc.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lc.File.MaxBackups)
	v.SetDefault("log.file.compress", lc.File.Compress)

	v.SetDefault("auth.jwt_issuer", "kingshare")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.from_name", "KingShare")
	v.SetDefault("email.tls_policy", "mandatory")
	v.SetDefault("email.max_retries", 3)
	v.SetDefault("email.retry_interval", 2*time.Second)
	v.SetDefault("email.connect_timeout", 10*time.Second)
	v.SetDefault("email.send_timeout", 30*time.Second)

	wp := workerpool.DefaultConfig()
	v.SetDefault("notify.workers", wp.Workers)
	v.SetDefault("notify.max_blocking", wp.MaxBlocking)
	v.SetDefault("notify.expiry_duration", wp.ExpiryDuration)
	v.SetDefault("notify.release_timeout", wp.ReleaseTimeout)

	v.SetDefault("transfer.storage_driver", "postgres")
	v.SetDefault("transfer.max_expiration_days", 365)
	v.SetDefault("transfer.max_upload_bytes", int64(2<<30))
	v.SetDefault("transfer.max_files", 100)
	v.SetDefault("transfer.sweep_interval", time.Hour)
	v.SetDefault("transfer.public_base_url", "http://localhost:3000")
	v.SetDefault("transfer.stats_recent_limit", 50)

	v.SetDefault("geoip.enabled", false)
	v.SetDefault("geoip.endpoint", "http://ip-api.com/json/%s?fields=status,country,regionName,city")
	v.SetDefault("geoip.timeout", 2*time.Second)
	v.SetDefault("geoip.cache_size", 4096)
	v.SetDefault("geoip.cache_ttl", 24*time.Hour)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.share_max_requests", 60)
	v.SetDefault("ratelimit.share_window_seconds", 60)
	v.SetDefault("ratelimit.password_max_failures", 10)
	v.SetDefault("ratelimit.password_lockout", 15*time.Minute)
	v.SetDefault("ratelimit.local_rps", 2.0)
	v.SetDefault("ratelimit.local_burst", 20)
}
