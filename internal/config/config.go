package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the name of the JSON config file looked up by Load.
const FileName = "gamesplane.cfg.json"

// CameraConfig holds camera intrinsics settings
type CameraConfig struct {
	Calibration string `json:"calibration" mapstructure:"calibration"` // YAML file; empty means auto-calibrate
	Width       int    `json:"width" mapstructure:"width"`
	Height      int    `json:"height" mapstructure:"height"`
}

// OverlayConfig holds overlay fetching and caching settings
type OverlayConfig struct {
	BaseURL            string        `json:"baseUrl" mapstructure:"baseUrl"`
	Size               int           `json:"size" mapstructure:"size"`
	Workers            int           `json:"workers" mapstructure:"workers"`
	QueueSize          int           `json:"queueSize" mapstructure:"queueSize"`
	FetchTimeout       time.Duration `json:"fetchTimeout" mapstructure:"fetchTimeout"`
	LoadingPlaceholder string        `json:"loadingPlaceholder" mapstructure:"loadingPlaceholder"`
	FailedPlaceholder  string        `json:"failedPlaceholder" mapstructure:"failedPlaceholder"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig holds overlay cache persistence settings
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"` // "sqlite", "postgres" or "memory"
	Dir      string         `json:"dir" mapstructure:"dir"`   // sqlite: one file per game/variant
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// EstimatorConfig mirrors estimator.Config so the config package stays a leaf.
type EstimatorConfig struct {
	Strategy          string            `json:"strategy" mapstructure:"strategy"`
	WindowSize        int               `json:"windowSize" mapstructure:"windowSize"`
	WindowAge         time.Duration     `json:"windowAge" mapstructure:"windowAge"`
	MinAgreeingFrames int               `json:"minAgreeingFrames" mapstructure:"minAgreeingFrames"`
	Members           []EstimatorConfig `json:"members" mapstructure:"members"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB telemetry settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server address built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// StreamConfig holds the websocket publisher settings
type StreamConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// GraylogConfig holds the GELF log sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; commands that run
// without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./gamesplane-logs")
	viper.SetDefault("game", "tictactoe")
	viper.SetDefault("variant", "")

	viper.SetDefault("camera.calibration", "")
	viper.SetDefault("camera.width", 1280)
	viper.SetDefault("camera.height", 720)

	viper.SetDefault("overlay.baseUrl", "http://localhost:3000/uni")
	viper.SetDefault("overlay.size", 512)
	viper.SetDefault("overlay.workers", 4)
	viper.SetDefault("overlay.queueSize", 64)
	viper.SetDefault("overlay.fetchTimeout", "30s")
	viper.SetDefault("overlay.loadingPlaceholder", "")
	viper.SetDefault("overlay.failedPlaceholder", "")

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.dir", "./overlay-cache")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "gamesplane")

	viper.SetDefault("estimator.strategy", "ensemble")
	viper.SetDefault("estimator.windowSize", 10)
	viper.SetDefault("estimator.windowAge", "0s")
	viper.SetDefault("estimator.minAgreeingFrames", 5)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "gamesplane")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "gamesplane")
	viper.SetDefault("influx.bucket", "frames")

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.url", "ws://localhost:5000/stream")
	viper.SetDefault("stream.secret", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
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

// GetCameraConfig returns the camera settings.
func GetCameraConfig() CameraConfig {
	return CameraConfig{
		Calibration: viper.GetString("camera.calibration"),
		Width:       viper.GetInt("camera.width"),
		Height:      viper.GetInt("camera.height"),
	}
}

// GetOverlayConfig returns the overlay fetch and cache settings.
func GetOverlayConfig() OverlayConfig {
	return OverlayConfig{
		BaseURL:            viper.GetString("overlay.baseUrl"),
		Size:               viper.GetInt("overlay.size"),
		Workers:            viper.GetInt("overlay.workers"),
		QueueSize:          viper.GetInt("overlay.queueSize"),
		FetchTimeout:       viper.GetDuration("overlay.fetchTimeout"),
		LoadingPlaceholder: viper.GetString("overlay.loadingPlaceholder"),
		FailedPlaceholder:  viper.GetString("overlay.failedPlaceholder"),
	}
}

// GetStorageConfig returns the overlay persistence settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Dir:  viper.GetString("storage.dir"),
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
	}
}

// GetEstimatorConfig returns the board state estimator settings. Ensemble
// members are nested objects and are decoded through viper's unmarshaller.
func GetEstimatorConfig() (EstimatorConfig, error) {
	cfg := EstimatorConfig{
		Strategy:          viper.GetString("estimator.strategy"),
		WindowSize:        viper.GetInt("estimator.windowSize"),
		WindowAge:         viper.GetDuration("estimator.windowAge"),
		MinAgreeingFrames: viper.GetInt("estimator.minAgreeingFrames"),
	}
	if viper.IsSet("estimator.members") {
		if err := viper.UnmarshalKey("estimator.members", &cfg.Members); err != nil {
			return EstimatorConfig{}, fmt.Errorf("decoding estimator members: %w", err)
		}
	}
	return cfg, nil
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB telemetry settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetStreamConfig returns the websocket publisher settings.
func GetStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled: viper.GetBool("stream.enabled"),
		URL:     viper.GetString("stream.url"),
		Secret:  viper.GetString("stream.secret"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
