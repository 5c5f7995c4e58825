package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "opstrack.cfg.json"

// Load reads configuration from the JSON file in configDir and sets default
// values. A missing file is created from the defaults.
func Load(configDir string) error {
	setDefaults()

	path := filepath.Join(configDir, FileName)
	viper.SetConfigFile(path)
	viper.SetConfigType("json")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("error creating config dir: %w", err)
		}
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("error writing default config file: %w", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("debug", false)
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "OpsTrackLogs")

	viper.SetDefault("api.baseUrl", "http://127.0.0.1:5050")
	viper.SetDefault("api.apiKey", "defaultSecretKey")

	viper.SetDefault("events.connection", true)
	viper.SetDefault("events.kill", false)

	viper.SetDefault("identity.maxRetries", 20)
	viper.SetDefault("identity.retryDelay", "100ms")

	viper.SetDefault("pipeline.flushInterval", "1s")
	viper.SetDefault("pipeline.maxBatchSize", 25)
	viper.SetDefault("pipeline.maxStatesPerFlush", 200)
	viper.SetDefault("pipeline.minStatesPerFlush", 10)
	viper.SetDefault("pipeline.maxPayloadBytes", 256*1024)
	viper.SetDefault("pipeline.cooldown", "120s")

	viper.SetDefault("sampling.interval", "1s")
	viper.SetDefault("mission.assignDelay", "2s")

	viper.SetDefault("transport.type", "http")
	viper.SetDefault("transport.timeout", "10s")
	viper.SetDefault("transport.websocketUrl", "")

	viper.SetDefault("config.watch", false)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "30s")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "opstrack-recorder")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "60s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "opstrack")
	viper.SetDefault("influx.bucket", "opstrack")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("collector.listen", ":5050")
	viper.SetDefault("collector.apiKey", "defaultSecretKey")
	viper.SetDefault("collector.storage", "memory")
	viper.SetDefault("collector.sqlitePath", "")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "opstrack")

	viper.SetDefault("maps", []map[string]string{})
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Path returns the config file in use, or "" before Load.
func Path() string {
	return viper.ConfigFileUsed()
}

func reread() error {
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}
