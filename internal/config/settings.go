package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ErrNoBaseURL is returned by Validate when api.baseUrl is empty.
var ErrNoBaseURL = errors.New("api.baseUrl is empty")

// MaxRetriesCeiling bounds identity.maxRetries.
const MaxRetriesCeiling = 100

// Settings is a typed snapshot of the configuration.
type Settings struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"logLevel"`
	LogsDir  string `mapstructure:"logsDir"`

	API       APIConfig       `mapstructure:"api"`
	Events    EventsConfig    `mapstructure:"events"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Sampling  SamplingConfig  `mapstructure:"sampling"`
	Mission   MissionConfig   `mapstructure:"mission"`
	Transport TransportConfig `mapstructure:"transport"`
	Watch     WatchConfig     `mapstructure:"config"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Otel      OtelConfig      `mapstructure:"otel"`
	Influx    InfluxConfig    `mapstructure:"influx"`
	Graylog   GraylogConfig   `mapstructure:"graylog"`
	Collector CollectorConfig `mapstructure:"collector"`
	DB        DBConfig        `mapstructure:"db"`
	Maps      []MapEntry      `mapstructure:"maps"`
}

type APIConfig struct {
	BaseURL string `mapstructure:"baseUrl"`
	APIKey  string `mapstructure:"apiKey"`
}

// EventsConfig toggles whole event categories.
type EventsConfig struct {
	Connection bool `mapstructure:"connection"`
	Kill       bool `mapstructure:"kill"`
}

type IdentityConfig struct {
	MaxRetries int           `mapstructure:"maxRetries"`
	RetryDelay time.Duration `mapstructure:"retryDelay"`
}

// PipelineConfig sizes the batching pipeline.
type PipelineConfig struct {
	FlushInterval     time.Duration `mapstructure:"flushInterval"`
	MaxBatchSize      int           `mapstructure:"maxBatchSize"`
	MaxStatesPerFlush int           `mapstructure:"maxStatesPerFlush"`
	MinStatesPerFlush int           `mapstructure:"minStatesPerFlush"`
	MaxPayloadBytes   int           `mapstructure:"maxPayloadBytes"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
}

type SamplingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type MissionConfig struct {
	AssignDelay time.Duration `mapstructure:"assignDelay"`
}

// TransportConfig selects how batches reach the collector.
type TransportConfig struct {
	Type         string        `mapstructure:"type"` // "http" or "websocket"
	Timeout      time.Duration `mapstructure:"timeout"`
	WebsocketURL string        `mapstructure:"websocketUrl"`
}

type WatchConfig struct {
	Watch bool `mapstructure:"watch"`
}

type MonitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type OtelConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"serviceName"`
	BatchTimeout   time.Duration `mapstructure:"batchTimeout"`
	MetricInterval time.Duration `mapstructure:"metricInterval"`
	Endpoint       string        `mapstructure:"endpoint"`
	Insecure       bool          `mapstructure:"insecure"`
}

type InfluxConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Protocol string `mapstructure:"protocol"`
	Token    string `mapstructure:"token"`
	Org      string `mapstructure:"org"`
	Bucket   string `mapstructure:"bucket"`
}

// URL returns the influx server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

type GraylogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// CollectorConfig configures the reference collector server.
type CollectorConfig struct {
	Listen     string `mapstructure:"listen"`
	APIKey     string `mapstructure:"apiKey"`
	Storage    string `mapstructure:"storage"` // memory, sqlite or postgres
	SqlitePath string `mapstructure:"sqlitePath"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// DSN returns the Postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// MapEntry adds a world identifier to the map name table.
type MapEntry struct {
	WorldIdentifier string `mapstructure:"worldIdentifier"`
	MapName         string `mapstructure:"mapName"`
}

// Decode unmarshals the current viper state into Settings.
func Decode() (Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error decoding config: %w", err)
	}
	return s, nil
}

// Validate clamps out-of-range values in place. It returns warnings for
// recoverable problems and an error when the settings cannot be used.
func (s *Settings) Validate() (warnings []string, err error) {
	if s.API.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if s.API.APIKey == "" {
		warnings = append(warnings, "api.apiKey is empty")
	}

	if s.Identity.MaxRetries < 0 {
		warnings = append(warnings, fmt.Sprintf("identity.maxRetries %d clamped to 0", s.Identity.MaxRetries))
		s.Identity.MaxRetries = 0
	} else if s.Identity.MaxRetries > MaxRetriesCeiling {
		warnings = append(warnings, fmt.Sprintf("identity.maxRetries %d clamped to %d", s.Identity.MaxRetries, MaxRetriesCeiling))
		s.Identity.MaxRetries = MaxRetriesCeiling
	}
	if s.Identity.RetryDelay <= 0 {
		s.Identity.RetryDelay = 100 * time.Millisecond
	}

	p := &s.Pipeline
	if p.MaxBatchSize < 1 {
		warnings = append(warnings, "pipeline.maxBatchSize raised to 1")
		p.MaxBatchSize = 1
	}
	if p.MinStatesPerFlush < 1 {
		p.MinStatesPerFlush = 1
	}
	if p.MaxStatesPerFlush < p.MinStatesPerFlush {
		warnings = append(warnings, "pipeline.maxStatesPerFlush raised to pipeline.minStatesPerFlush")
		p.MaxStatesPerFlush = p.MinStatesPerFlush
	}
	if p.FlushInterval <= 0 {
		p.FlushInterval = time.Second
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 120 * time.Second
	}
	if s.Sampling.Interval <= 0 {
		s.Sampling.Interval = time.Second
	}
	if s.Transport.Timeout <= 0 {
		s.Transport.Timeout = 10 * time.Second
	}

	return warnings, nil
}
