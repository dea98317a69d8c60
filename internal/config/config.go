package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendEtcd     = "etcd"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Store struct {
		Backend string        `mapstructure:"backend"`
		Root    string        `mapstructure:"root"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"store"`
	Etcd struct {
		Endpoints   []string      `mapstructure:"endpoints"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
		Username    string        `mapstructure:"username"`
		Password    string        `mapstructure:"password"`
	} `mapstructure:"etcd"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		IndexKey string `mapstructure:"index_key"`
	} `mapstructure:"redis"`
	AMS struct {
		URL      string        `mapstructure:"url"`
		Timeout  time.Duration `mapstructure:"timeout"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"ams"`
	Git struct {
		Server     string        `mapstructure:"server"`
		Token      string        `mapstructure:"token"`
		Timeout    time.Duration `mapstructure:"timeout"`
		ScratchDir string        `mapstructure:"scratch_dir"`
	} `mapstructure:"git"`
	Auth struct {
		Enable   bool   `mapstructure:"enable"`
		Issuer   string `mapstructure:"issuer"`
		Audience string `mapstructure:"audience"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// DSN returns the postgres connection string of the db section.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":12015")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.root", "/jthub:wrs")
	v.SetDefault("store.timeout", 5*time.Second)

	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.username", "")
	v.SetDefault("etcd.password", "")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "wrs")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.index_key", "jthub:wrs:keys")

	v.SetDefault("ams.url", "http://localhost:12012/api/jt-ams/v0.1")
	v.SetDefault("ams.timeout", 5*time.Second)
	v.SetDefault("ams.cache_ttl", time.Minute)

	v.SetDefault("git.server", "https://github.com")
	v.SetDefault("git.token", "")
	v.SetDefault("git.timeout", 30*time.Second)
	v.SetDefault("git.scratch_dir", "")

	v.SetDefault("auth.enable", false)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")

	v.SetDefault("tls.enable", false)
	v.SetDefault("tls.cert_file", "certs/server.crt")
	v.SetDefault("tls.key_file", "certs/server.key")
	v.SetDefault("tls.hostnames", []string{"localhost"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig loads the configuration from a file and the environment.
// Without an explicit path config.yaml is looked up in . and ./config and
// may be absent. Environment variables such as WRS_STORE_BACKEND override
// file values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WRS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// normalize issuer and service urls (strip trailing slash if any)
	config.Auth.Issuer = strings.TrimRight(strings.TrimSpace(config.Auth.Issuer), "/")
	config.AMS.URL = strings.TrimRight(config.AMS.URL, "/")
	config.Git.Server = strings.TrimRight(config.Git.Server, "/")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the server can't start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres:
	case BackendEtcd:
		if len(c.Etcd.Endpoints) == 0 {
			errs = append(errs, errors.New("etcd.endpoints is required for the etcd backend"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Store.Root == "" {
		errs = append(errs, errors.New("store.root is required"))
	}
	if c.AMS.URL == "" {
		errs = append(errs, errors.New("ams.url is required"))
	}
	if c.Auth.Enable && c.Auth.Issuer == "" {
		errs = append(errs, errors.New("auth.issuer is required when auth is enabled"))
	}
	if c.TLS.Enable && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file are required when tls is enabled"))
	}
	return errors.Join(errs...)
}

// Warnings lists settings that start but are unlikely to be meant for a
// deployed service.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Store.Backend == BackendMemory {
		warnings = append(warnings, "store.backend is memory: registered workflows are lost when the process exits")
	}
	if !c.Auth.Enable {
		warnings = append(warnings, "auth is disabled: anyone can register workflows")
	}
	return warnings
}
