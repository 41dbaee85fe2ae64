package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the pipeline configuration shared by all job binaries.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Sources     SourcesConfig     `yaml:"sources"`
	Performance PerformanceConfig `yaml:"performance"`
	Logging     LoggingConfig     `yaml:"logging"`
	Health      HealthConfig      `yaml:"health"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
	Overflow int    `yaml:"overflow"`
}

// SourcesConfig groups the upstream source credentials and endpoints.
type SourcesConfig struct {
	TDX        TDXConfig        `yaml:"tdx"`
	AD         LDAPConfig       `yaml:"active_directory"`
	MCommunity MCommunityConfig `yaml:"mcommunity"`
	UMAPI      UMAPIConfig      `yaml:"umich_api"`
	KeyClient  KeyClientConfig  `yaml:"key_client"`
	LabAwards  LabAwardsConfig  `yaml:"lab_awards"`
}

// TDXConfig holds TeamDynamix API settings.
type TDXConfig struct {
	BaseURL     string `yaml:"base_url"`
	AppID       int    `yaml:"app_id"`
	AssetAppID  int    `yaml:"asset_app_id"`
	Token       string `yaml:"token"`
	RateLimited bool   `yaml:"rate_limited"`
	APIDelayMS  int    `yaml:"api_delay_ms"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

// LDAPConfig holds directory bind + search settings.
type LDAPConfig struct {
	URL      string `yaml:"url"`
	BindDN   string `yaml:"bind_dn"`
	Password string `yaml:"password"`
	BaseDN   string `yaml:"base_dn"`
	PageSize int    `yaml:"page_size"`
}

// MCommunityConfig extends LDAPConfig with the alumni filter knob.
type MCommunityConfig struct {
	LDAPConfig        `yaml:",inline"`
	IncludeAlumniOnly bool `yaml:"include_alumni_only"`
}

// UMAPIConfig holds institutional identity API settings.
type UMAPIConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TimeoutSecs  int    `yaml:"timeout_seconds"`
}

// KeyClientConfig holds inventory agent export settings.
type KeyClientConfig struct {
	BaseURL     string `yaml:"base_url"`
	ServiceKey  string `yaml:"service_key"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

// LabAwardsConfig holds the CSV export discovery glob.
type LabAwardsConfig struct {
	Glob string `yaml:"glob"`
}

// PerformanceConfig holds batch and worker tuning.
type PerformanceConfig struct {
	BatchSize       int `yaml:"batch_size"`        // upsert flush size
	ReadChunkSize   int `yaml:"read_chunk_size"`   // windowed bronze read chunk
	InsertChunkSize int `yaml:"insert_chunk_size"` // link-table insert chunk
	MaxWorkers      int `yaml:"max_workers"`       // enrichment worker pool
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// HealthConfig holds the optional health/metrics endpoint settings.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// Load reads the YAML config at path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "prefer"
	}
	if c.Database.PoolSize == 0 {
		c.Database.PoolSize = 5
	}
	if c.Database.Overflow == 0 {
		c.Database.Overflow = 10
	}
	if c.Performance.BatchSize == 0 {
		c.Performance.BatchSize = 500
	}
	if c.Performance.ReadChunkSize == 0 {
		c.Performance.ReadChunkSize = 1000
	}
	if c.Performance.InsertChunkSize == 0 {
		c.Performance.InsertChunkSize = 5000
	}
	if c.Performance.MaxWorkers == 0 {
		c.Performance.MaxWorkers = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Sources.AD.PageSize == 0 {
		c.Sources.AD.PageSize = 1000
	}
	if c.Sources.MCommunity.PageSize == 0 {
		c.Sources.MCommunity.PageSize = 1000
	}
}

// Credentials come from the environment when set, so config files can be
// committed without secrets.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATAHUB_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DATAHUB_TDX_TOKEN"); v != "" {
		c.Sources.TDX.Token = v
	}
	if v := os.Getenv("DATAHUB_AD_PASSWORD"); v != "" {
		c.Sources.AD.Password = v
	}
	if v := os.Getenv("DATAHUB_MCOMMUNITY_PASSWORD"); v != "" {
		c.Sources.MCommunity.Password = v
	}
	if v := os.Getenv("DATAHUB_UMAPI_SECRET"); v != "" {
		c.Sources.UMAPI.ClientSecret = v
	}
	if v := os.Getenv("DATAHUB_KEY_SERVICE_KEY"); v != "" {
		c.Sources.KeyClient.ServiceKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if c.Performance.BatchSize < 1 {
		return fmt.Errorf("performance.batch_size must be at least 1")
	}
	if c.Performance.MaxWorkers < 1 {
		return fmt.Errorf("performance.max_workers must be at least 1")
	}
	return nil
}

// ConnString builds a pgx-compatible PostgreSQL connection string.
func (d *DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.User, d.Password, d.SSLMode,
	)
}

// MaxConns returns the pool ceiling (base pool plus overflow).
func (d *DatabaseConfig) MaxConns() int32 {
	return int32(d.PoolSize + d.Overflow)
}

// APIDelay returns the inter-call delay for rate-limited sources.
func (t *TDXConfig) APIDelay() time.Duration {
	return time.Duration(t.APIDelayMS) * time.Millisecond
}

// Timeout returns the HTTP client timeout.
func (t *TDXConfig) Timeout() time.Duration {
	if t.TimeoutSecs == 0 {
		return 60 * time.Second
	}
	return time.Duration(t.TimeoutSecs) * time.Second
}
