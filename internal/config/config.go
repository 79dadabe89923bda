package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration, parsed from environment
// variables (optionally seeded from a .env file).
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	Server        ServerConfig        `envPrefix:"SERVER_"`
	Mongo         MongoConfig         `envPrefix:"MONGO_"`
	Elasticsearch ElasticsearchConfig `envPrefix:"ELASTICSEARCH_"`
	Kafka         KafkaConfig         `envPrefix:"KAFKA_"`
	Redis         RedisConfig         `envPrefix:"REDIS_"`
	Clickhouse    ClickhouseConfig    `envPrefix:"CLICKHOUSE_"`
	Generator     GeneratorConfig     `envPrefix:"GENERATOR_"`
	Logging       LoggingConfig       `envPrefix:"LOG_"`
}

type ServerConfig struct {
	Host         string        `env:"HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"PORT" envDefault:"8080"`
	TLSPort      int           `env:"TLS_PORT" envDefault:"8443"`
	EnableTLS    bool          `env:"ENABLE_TLS" envDefault:"false"`
	AutoCert     bool          `env:"AUTO_CERT" envDefault:"false"`
	Domain       string        `env:"DOMAIN" envDefault:"localhost"`
	CertFile     string        `env:"CERT_FILE"`
	KeyFile      string        `env:"KEY_FILE"`
	AutoCertDir  string        `env:"AUTO_CERT_DIR" envDefault:"./certs"`
	Email        string        `env:"EMAIL"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
}

type MongoConfig struct {
	URI        string        `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database   string        `env:"DATABASE" envDefault:"fraudsim"`
	Collection string        `env:"COLLECTION" envDefault:"login_sessions"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type ElasticsearchConfig struct {
	URL      string `env:"URL" envDefault:"http://localhost:9200"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Index    string `env:"INDEX" envDefault:"login-sessions"`
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"fraud.session-batches"`
	Enabled bool     `env:"ENABLED" envDefault:"true"`
}

type RedisConfig struct {
	URL       string        `env:"URL" envDefault:"redis://localhost:6379"`
	Password  string        `env:"PASSWORD"`
	DB        int           `env:"DB" envDefault:"0"`
	PoolSize  int           `env:"POOL_SIZE" envDefault:"20"`
	ReportTTL time.Duration `env:"REPORT_TTL" envDefault:"60s"`
}

type ClickhouseConfig struct {
	URL      string `env:"URL" envDefault:"http://localhost:8123"`
	Username string `env:"USERNAME" envDefault:"default"`
	Password string `env:"PASSWORD"`
	Database string `env:"DATABASE" envDefault:"fraudsim"`
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
}

// GeneratorConfig carries the simulation defaults. The probabilities are part
// of the simulator's documented behavior and are only overridden in
// experiments.
type GeneratorConfig struct {
	SharedPoolSize       int     `env:"SHARED_POOL_SIZE" envDefault:"50"`
	HighVelocityPoolSize int     `env:"HIGH_VELOCITY_POOL_SIZE" envDefault:"10"`
	HighVelocityUserRate float64 `env:"HIGH_VELOCITY_USER_RATE" envDefault:"0.30"`
	MinSessionsPerUser   int     `env:"MIN_SESSIONS_PER_USER" envDefault:"5"`
	MaxSessionsPerUser   int     `env:"MAX_SESSIONS_PER_USER" envDefault:"30"`
	Workers              int     `env:"WORKERS" envDefault:"8"`
	ReportTopN           int     `env:"REPORT_TOP_N" envDefault:"20"`
}

type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
}

var (
	loaded   *Config
	loadOnce sync.Once
)

// LoadConfig reads .env (when present) and parses the environment into a
// Config. The first successfully parsed config is cached for Get.
func LoadConfig() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loadOnce.Do(func() { loaded = cfg })
	return cfg, nil
}

// Get returns the cached config. It panics if LoadConfig has not run, which
// only happens on a wiring mistake during startup.
func Get() *Config {
	if loaded == nil {
		panic("config.Get called before config.LoadConfig")
	}
	return loaded
}

// Validate rejects configurations the generator cannot run with.
func (c *Config) Validate() error {
	g := c.Generator
	if g.SharedPoolSize <= 0 || g.HighVelocityPoolSize <= 0 {
		return fmt.Errorf("invalid pool sizes: shared=%d high_velocity=%d", g.SharedPoolSize, g.HighVelocityPoolSize)
	}
	if g.HighVelocityUserRate < 0 || g.HighVelocityUserRate > 1 {
		return fmt.Errorf("high velocity user rate %v outside [0,1]", g.HighVelocityUserRate)
	}
	if g.MinSessionsPerUser > g.MaxSessionsPerUser {
		return fmt.Errorf("min sessions per user %d exceeds max %d", g.MinSessionsPerUser, g.MaxSessionsPerUser)
	}
	if g.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", g.Workers)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
