package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the config file looked up in the config directory.
const ConfigFileName = "harvester.cfg.json"

// BotConfig holds tick loop and strategy settings
type BotConfig struct {
	IntervalMs     int    `json:"intervalMs" mapstructure:"intervalMs"`
	Mode           string `json:"mode" mapstructure:"mode"`
	HoldOccupied   bool   `json:"holdOccupied" mapstructure:"holdOccupied"`
	JitterMax      int    `json:"jitterMax" mapstructure:"jitterMax"`
	JitterSeed     int64  `json:"jitterSeed" mapstructure:"jitterSeed"`
	QueryResources bool   `json:"queryResources" mapstructure:"queryResources"`
	MaxTicks       int    `json:"maxTicks" mapstructure:"maxTicks"`
}

// HTTPConfig holds game server API settings
type HTTPConfig struct {
	ServerURL string        `json:"serverUrl" mapstructure:"serverUrl"`
	Token     string        `json:"token" mapstructure:"token"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// ScriptConfig holds playback settings
type ScriptConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// TransportConfig selects how the bot reaches the driver
type TransportConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	HTTP   HTTPConfig   `json:"http" mapstructure:"http"`
	Script ScriptConfig `json:"script" mapstructure:"script"`
}

// MemoryConfig holds session journal settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// GormConfig holds database backend settings
type GormConfig struct {
	Dialect       string        `json:"dialect" mapstructure:"dialect"` // postgres | sqlite
	SqlitePath    string        `json:"sqlitePath" mapstructure:"sqlitePath"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// SQLiteConfig holds in-memory SQLite backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// WebSocketConfig holds live stream settings
type WebSocketConfig struct {
	URL        string        `json:"url" mapstructure:"url"`
	Secret     string        `json:"secret" mapstructure:"secret"`
	AckTimeout time.Duration `json:"ackTimeout" mapstructure:"ackTimeout"`
}

// StorageConfig holds recording backend configuration
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	Gorm      GormConfig      `json:"gorm" mapstructure:"gorm"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB metrics settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// MonitorConfig holds status server settings
type MonitorConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// UploadConfig holds results server settings for exported session files
type UploadConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	APIKey  string `json:"apiKey" mapstructure:"apiKey"`
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./harvestlogs")

	viper.SetDefault("bot.intervalMs", 1000)
	viper.SetDefault("bot.mode", "move")
	viper.SetDefault("bot.holdOccupied", false)
	viper.SetDefault("bot.jitterMax", 0)
	viper.SetDefault("bot.jitterSeed", 0)
	viper.SetDefault("bot.queryResources", false)
	viper.SetDefault("bot.maxTicks", 0)

	viper.SetDefault("transport.type", "line")
	viper.SetDefault("transport.http.serverUrl", "https://contest.2021-autumn.gbc.tenka1.klab.jp")
	viper.SetDefault("transport.http.token", "YOUR_TOKEN")
	viper.SetDefault("transport.http.timeout", "30s")
	viper.SetDefault("transport.script.path", "")

	// same variable names as the contest's sample bots
	_ = viper.BindEnv("transport.http.serverUrl", "GAME_SERVER")
	_ = viper.BindEnv("transport.http.token", "TOKEN")

	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.gorm.dialect", "sqlite")
	viper.SetDefault("storage.gorm.sqlitePath", "")
	viper.SetDefault("storage.gorm.flushInterval", "2s")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.ackTimeout", "10s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "harvester")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "harvester-metrics")
	viper.SetDefault("influx.bucket", "harvester")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "harvester")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.address", ":8089")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.url", "http://localhost:5000")
	viper.SetDefault("upload.apiKey", "")
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

// GetBotConfig returns the tick loop configuration.
func GetBotConfig() BotConfig {
	return BotConfig{
		IntervalMs:     viper.GetInt("bot.intervalMs"),
		Mode:           viper.GetString("bot.mode"),
		HoldOccupied:   viper.GetBool("bot.holdOccupied"),
		JitterMax:      viper.GetInt("bot.jitterMax"),
		JitterSeed:     viper.GetInt64("bot.jitterSeed"),
		QueryResources: viper.GetBool("bot.queryResources"),
		MaxTicks:       viper.GetInt("bot.maxTicks"),
	}
}

// GetTransportConfig returns the driver transport configuration.
func GetTransportConfig() TransportConfig {
	return TransportConfig{
		Type: viper.GetString("transport.type"),
		HTTP: HTTPConfig{
			ServerURL: viper.GetString("transport.http.serverUrl"),
			Token:     viper.GetString("transport.http.token"),
			Timeout:   viper.GetDuration("transport.http.timeout"),
		},
		Script: ScriptConfig{
			Path: viper.GetString("transport.script.path"),
		},
	}
}

// GetStorageConfig returns the recording backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		Gorm: GormConfig{
			Dialect:       viper.GetString("storage.gorm.dialect"),
			SqlitePath:    viper.GetString("storage.gorm.sqlitePath"),
			FlushInterval: viper.GetDuration("storage.gorm.flushInterval"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		WebSocket: WebSocketConfig{
			URL:        viper.GetString("storage.websocket.url"),
			Secret:     viper.GetString("storage.websocket.secret"),
			AckTimeout: viper.GetDuration("storage.websocket.ackTimeout"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetMonitorConfig returns the status server configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled: viper.GetBool("monitor.enabled"),
		Address: viper.GetString("monitor.address"),
	}
}

// GetUploadConfig returns the results upload configuration.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled: viper.GetBool("upload.enabled"),
		URL:     viper.GetString("upload.url"),
		APIKey:  viper.GetString("upload.apiKey"),
	}
}

// GetGraylogConfig returns the GELF configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
