package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "STAFFAUTH"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type EmailConfig struct {
	AllowedDomain string `mapstructure:"allowed_domain"`
	LoginURL      string `mapstructure:"login_url"`
}

type StoreConfig struct {
	Driver  string        `mapstructure:"driver"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig selects the revocation store. An empty Addr keeps revocations
// in process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaTopics struct {
	UserCreated  string `mapstructure:"user_created"`
	EmailSend    string `mapstructure:"email_send"`
	Connectivity string `mapstructure:"connectivity"`
}

// KafkaConfig selects the notification broker. With no brokers, events are
// only logged.
type KafkaConfig struct {
	Brokers  []string    `mapstructure:"brokers"`
	ClientID string      `mapstructure:"client_id"`
	Topics   KafkaTopics `mapstructure:"topics"`
}

type NotifyConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type RateConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type Config struct {
	ServiceName string         `mapstructure:"service_name"`
	Env         string         `mapstructure:"env"`
	LogLevel    string         `mapstructure:"log_level"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	GRPC        GRPCConfig     `mapstructure:"grpc"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	Email       EmailConfig    `mapstructure:"email"`
	Store       StoreConfig    `mapstructure:"store"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
	Mongo       MongoConfig    `mapstructure:"mongo"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Notify      NotifyConfig   `mapstructure:"notify"`
	Rate        RateConfig     `mapstructure:"rate"`
}

// Load reads path (optional) and the STAFFAUTH_* environment over defaults.
// A missing file named explicitly is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.HTTP.AllowedOrigins = splitList(cfg.HTTP.AllowedOrigins)
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "staffauth")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", "24h")
	v.SetDefault("jwt.refresh_ttl", "168h")

	v.SetDefault("email.allowed_domain", "@selco.com.br")
	v.SetDefault("email.login_url", "http://localhost:8080/login")

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.timeout", "3s")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "staffauth")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "staffauth")
	v.SetDefault("kafka.topics.user_created", "user-created")
	v.SetDefault("kafka.topics.email_send", "email-send")
	v.SetDefault("kafka.topics.connectivity", "test.connectivity")

	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.publish_timeout", "5s")

	v.SetDefault("rate.per_second", 5.0)
	v.SetDefault("rate.burst", 10)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.Secret) == "" && c.Env != "dev" {
		errs = append(errs, errors.New("jwt.secret is required outside dev"))
	}
	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("jwt.access_ttl must be positive"))
	}
	if c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("jwt.refresh_ttl must be positive"))
	}
	if strings.TrimSpace(c.Email.AllowedDomain) == "" {
		errs = append(errs, errors.New("email.allowed_domain is required"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres driver"))
		}
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && (c.Kafka.Topics.UserCreated == "" || c.Kafka.Topics.EmailSend == "") {
		errs = append(errs, errors.New("kafka topics required"))
	}
	if c.Notify.QueueSize <= 0 {
		errs = append(errs, errors.New("notify.queue_size must be positive"))
	}
	if c.Rate.PerSecond <= 0 || c.Rate.Burst <= 0 {
		errs = append(errs, errors.New("rate.per_second and rate.burst must be positive"))
	}
	return errors.Join(errs...)
}

// SigningSecret returns the configured secret, or a fixed development secret
// when running in dev without one.
func (c *Config) SigningSecret() string {
	if s := strings.TrimSpace(c.JWT.Secret); s != "" {
		return s
	}
	return "dev-only-insecure-secret"
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
