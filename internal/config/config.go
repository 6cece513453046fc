// Package config loads and hot-reloads the service's tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface. Server/Security/Redis/MQTT/
// Monitoring/restart-only fields are loaded once at startup from the
// environment; Runtime holds the hot-reloadable subset and is swapped
// atomically by Reload.
type Config struct {
	Environment string
	Server      ServerConfig
	Security    SecurityConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	ScoutClient ScoutClientConfig
	Geofence    GeofenceClientConfig
	Monitoring  MonitoringConfig
	Logging     LoggingConfig

	runtimePath string
	runtime     atomic.Pointer[Runtime]
}

// ServerConfig is restart-only (listen address).
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SecurityConfig is restart-only (§6.1 security controls).
type SecurityConfig struct {
	AllowedIPs []string
	// HeaderName/HeaderValue come from "HeaderName: ExpectedValue".
	HeaderName  string
	HeaderValue string
}

// RedisConfig backs the geofence fetch cache only; see SPEC_FULL.md.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Enabled  bool
}

// MQTTConfig is restart-only; enables the optional ingestion bridge.
type MQTTConfig struct {
	Enabled      bool
	URL          string
	ClientID     string
	Username     string
	Password     string
	FeedTopic    string
	CensusTopic  string
	CleanSession bool
}

// ScoutClientConfig holds the Scout Service credentials (secrets, restart-only).
type ScoutClientConfig struct {
	BaseURL  string
	Username string
	Password string
	Bearer   string
	APIKey   string
	Timeout  time.Duration
}

// GeofenceClientConfig holds the geofence source endpoint (restart-only).
type GeofenceClientConfig struct {
	BaseURL string
	Project string
	Bearer  string
	Timeout time.Duration
}

// MonitoringConfig is restart-only.
type MonitoringConfig struct {
	MetricsEnabled bool
	MetricsPort    string
}

// LoggingConfig is restart-only.
type LoggingConfig struct {
	Level    string
	Format   string
	FilePath string
}

// DurationSeconds is a time.Duration that unmarshals from YAML the way
// §6.4's runtime tunables are documented: a bare number is seconds
// (yaml.v3 has no special case for time.Duration, so an unmarshaled
// bare "90" would otherwise become 90 nanoseconds). A Go duration
// string ("90s", "2m") is also accepted for operators who prefer it.
type DurationSeconds time.Duration

func (d *DurationSeconds) UnmarshalYAML(value *yaml.Node) error {
	var seconds float64
	if err := value.Decode(&seconds); err == nil {
		*d = DurationSeconds(seconds * float64(time.Second))
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration: expected a number of seconds or a duration string, got %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = DurationSeconds(parsed)
	return nil
}

// Duration converts to a time.Duration for use by callers.
func (d DurationSeconds) Duration() time.Duration { return time.Duration(d) }

func (d DurationSeconds) String() string { return time.Duration(d).String() }

// Runtime is the hot-reloadable subset described in §6.4: loaded from
// a YAML file and swapped atomically on Reload.
type Runtime struct {
	PriorityList []string `yaml:"priority_list"`
	CellList     []string `yaml:"cell_list"`

	IVThreshold   int `yaml:"iv_threshold"`
	CellThreshold int `yaml:"cell_threshold"`

	RarityEnabled      bool            `yaml:"rarity_enabled"`
	CalibrationMinutes int             `yaml:"calibration_minutes"`
	RankingInterval    DurationSeconds `yaml:"ranking_interval_seconds"`
	CleanupInterval    DurationSeconds `yaml:"cleanup_interval_seconds"`

	TimeoutIV        DurationSeconds `yaml:"timeout_iv"`
	ConcurrencyScout int             `yaml:"concurrency_scout"`
	FilterWithKoji   bool            `yaml:"filter_with_koji"`

	GeofenceExpireSeconds  DurationSeconds `yaml:"geofence_expire_cache_seconds"`
	GeofenceRefreshSeconds DurationSeconds `yaml:"geofence_refresh_cache_seconds"`
}

// PriorityListPositions and CellListPositions build key -> position maps
// for priority_list / cell_list.
func (r *Runtime) PriorityListPositions() map[string]int {
	return positions(r.PriorityList)
}

func (r *Runtime) CellListPositions() map[string]int {
	return positions(r.CellList)
}

func positions(list []string) map[string]int {
	m := make(map[string]int, len(list))
	for i, k := range list {
		if _, exists := m[k]; !exists {
			m[k] = i
		}
	}
	return m
}

// Load reads environment secrets/endpoints and the YAML tunables file.
// .env is loaded first, best-effort, so local development can set
// environment variables without exporting them manually.
func Load(runtimeFilePath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ""),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Security: SecurityConfig{
			AllowedIPs:  getStringSlice("ALLOWED_IPS", nil),
			HeaderName:  "",
			HeaderValue: "",
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			Enabled:  getBool("REDIS_ENABLED", false),
		},
		MQTT: MQTTConfig{
			Enabled:      getBool("MQTT_ENABLED", false),
			URL:          getEnv("MQTT_URL", "tcp://localhost:1883"),
			ClientID:     getEnv("MQTT_CLIENT_ID", ""),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			FeedTopic:    getEnv("MQTT_FEED_TOPIC", "lazyscout/webhook"),
			CensusTopic:  getEnv("MQTT_CENSUS_TOPIC", "lazyscout/webhook/census"),
			CleanSession: getBool("MQTT_CLEAN_SESSION", true),
		},
		ScoutClient: ScoutClientConfig{
			BaseURL:  getEnv("SCOUT_BASE_URL", ""),
			Username: getEnv("SCOUT_USERNAME", ""),
			Password: getEnv("SCOUT_PASSWORD", ""),
			Bearer:   getEnv("SCOUT_BEARER", ""),
			APIKey:   getEnv("SCOUT_API_KEY", ""),
			Timeout:  getDuration("SCOUT_TIMEOUT", 20*time.Second),
		},
		Geofence: GeofenceClientConfig{
			BaseURL: getEnv("GEOFENCE_BASE_URL", ""),
			Project: getEnv("GEOFENCE_PROJECT", ""),
			Bearer:  getEnv("GEOFENCE_BEARER", ""),
			Timeout: getDuration("GEOFENCE_TIMEOUT", 15*time.Second),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			MetricsPort:    getEnv("METRICS_PORT", "9090"),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", "text"),
			FilePath: getEnv("LOG_FILE_PATH", ""),
		},
		runtimePath: runtimeFilePath,
	}

	if headerAuth := getEnv("HEADER_AUTH", ""); headerAuth != "" {
		name, value, err := parseHeaderAuth(headerAuth)
		if err != nil {
			return nil, err
		}
		cfg.Security.HeaderName = name
		cfg.Security.HeaderValue = value
	}

	runtime, err := loadRuntime(runtimeFilePath)
	if err != nil {
		return nil, fmt.Errorf("load runtime config: %w", err)
	}
	cfg.runtime.Store(runtime)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Runtime returns the currently active reloadable configuration.
func (c *Config) Runtime() *Runtime {
	return c.runtime.Load()
}

// Reload re-reads the YAML tunables file and atomically swaps the
// runtime pointer. Callers (Orchestrator) are responsible for pushing
// the new values into components that need an explicit update, such
// as PriorityQueue.updateConcurrency.
func (c *Config) Reload() (*Runtime, error) {
	runtime, err := loadRuntime(c.runtimePath)
	if err != nil {
		return nil, err
	}
	c.runtime.Store(runtime)
	return runtime, nil
}

func loadRuntime(path string) (*Runtime, error) {
	r := defaultRuntime()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse runtime yaml: %w", err)
	}
	return r, nil
}

func defaultRuntime() *Runtime {
	return &Runtime{
		IVThreshold:            100,
		CellThreshold:          100,
		RarityEnabled:          true,
		CalibrationMinutes:     60,
		RankingInterval:        DurationSeconds(5 * time.Minute),
		CleanupInterval:        DurationSeconds(1 * time.Minute),
		TimeoutIV:              DurationSeconds(90 * time.Second),
		ConcurrencyScout:       10,
		FilterWithKoji:         true,
		GeofenceExpireSeconds:  DurationSeconds(30 * time.Minute),
		GeofenceRefreshSeconds: DurationSeconds(5 * time.Minute),
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behaviour.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("SERVER_ADDRESS is required")
	}
	r := c.Runtime()
	if r.ConcurrencyScout <= 0 {
		return fmt.Errorf("concurrency_scout must be positive")
	}
	if r.IVThreshold < 0 {
		return fmt.Errorf("iv_threshold must be non-negative")
	}
	return nil
}

func parseHeaderAuth(raw string) (name, value string, err error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("HEADER_AUTH must be \"HeaderName: ExpectedValue\", got %q", raw)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getStringSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
