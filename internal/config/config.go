package config

import (
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	IsDebug  bool   `yaml:"is_debug" env-default:"false"`
	TimeZone string `yaml:"time_zone" env-default:"America/Sao_Paulo"`
	Listen   struct {
		BindIP          string        `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port            string        `yaml:"port" env-default:"8080"`
		TLS             bool          `yaml:"tls_enabled" env-default:"false"`
		CertFile        string        `yaml:"cert_file" env-default:""`
		KeyFile         string        `yaml:"key_file" env-default:""`
		ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
		// addresses or CIDR blocks allowed to set X-Forwarded-For and X-Real-IP
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:""`
		Password string `yaml:"password" env-default:""`
		Database string `yaml:"database" env-default:"pixgate"`
	} `yaml:"mongo"`
	// Admin is created at start when the password is set and no user has the email;
	// without it an in-memory gateway has nobody who can log in
	Admin struct {
		Email    string `yaml:"email" env:"PIX_ADMIN_EMAIL" env-default:"admin@pixgate.local"`
		Password string `yaml:"password" env:"PIX_ADMIN_PASSWORD" env-default:""`
	} `yaml:"admin"`
	Redis struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Address  string `yaml:"address" env-default:"127.0.0.1:6379"`
		Password string `yaml:"password" env-default:""`
		DB       int    `yaml:"db" env-default:"0"`
	} `yaml:"redis"`
	Jwt struct {
		Secret     string        `yaml:"secret" env:"PIX_JWT_SECRET" env-default:""`
		AccessTTL  time.Duration `yaml:"access_ttl" env-default:"15m"`
		RefreshTTL time.Duration `yaml:"refresh_ttl" env-default:"168h"`
	} `yaml:"jwt"`
	Encryption struct {
		Key string `yaml:"key" env:"PIX_ENCRYPTION_KEY" env-default:""`
	} `yaml:"encryption"`
	Audit struct {
		Enabled        bool `yaml:"enabled" env-default:"true"`
		RetentionYears int  `yaml:"retention_years" env-default:"5"`
	} `yaml:"audit"`
	RateLimit struct {
		Rps   int `yaml:"rps" env-default:"100"`
		Burst int `yaml:"burst" env-default:"200"`
	} `yaml:"rate_limit"`
	Cors struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port    string `yaml:"port" env-default:"9100"`
	} `yaml:"metrics"`
	Telegram struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env-default:""`
	} `yaml:"telegram"`
	Pusher struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		AppID   string `yaml:"app_id" env-default:""`
		Key     string `yaml:"key" env-default:""`
		Secret  string `yaml:"secret" env:"PIX_PUSHER_SECRET" env-default:""`
		Cluster string `yaml:"cluster" env-default:"us2"`
	} `yaml:"pusher"`
	Webhooks struct {
		Workers    int           `yaml:"workers" env-default:"4"`
		Timeout    time.Duration `yaml:"timeout" env-default:"30s"`
		MaxRetries int           `yaml:"max_retries" env-default:"3"`
		// AllowPrivate permits loopback and private network targets, for local development
		AllowPrivate bool `yaml:"allow_private" env-default:"false"`
	} `yaml:"webhooks"`
	Reconcile struct {
		Interval time.Duration `yaml:"interval" env-default:"1m"`
		Batch    int           `yaml:"batch" env-default:"100"`
	} `yaml:"reconcile"`
	Health struct {
		Interval time.Duration `yaml:"interval" env-default:"30s"`
	} `yaml:"health"`
	Providers map[string]Provider `yaml:"providers"`
}

// Provider holds connection settings of one bank adapter; keyed by provider code.
type Provider struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	AuthURL      string `yaml:"auth_url"`
	SandboxURL   string `yaml:"sandbox_url"`
	Timeout      int    `yaml:"timeout"`
	MaxRetries   int    `yaml:"max_retries"`
	RequiresMTLS bool   `yaml:"requires_mtls"`
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	Priority     int    `yaml:"priority"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		log.Println("reading config from", path)
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			log.Println(desc)
			log.Println(err)
			instance = nil
		}
	})
	return instance, err
}
