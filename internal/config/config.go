package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	DirName         = "jobwatch"
	ConfigFileName  = "config.json"
	ProxiesFileName = "proxies.txt"
	DataDirName     = "data"

	EnvPrefix = "JOBWATCH_"

	StageDev        = "dev"
	StageProduction = "production"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the content of config.json after environment overrides.
type Config struct {
	Stage       string            `json:"stage"`
	Store       StoreConfig       `json:"store"`
	Fetch       FetchConfig       `json:"fetch"`
	ScrapingBee ScrapingBeeConfig `json:"scrapingbee"`
	Zyte        ZyteConfig        `json:"zyte"`
	Schedule    ScheduleConfig    `json:"schedule"`
	Refresh     RefreshConfig     `json:"refresh"`
	Metrics     MetricsConfig     `json:"metrics"`
}

type StoreConfig struct {
	Driver   string `json:"driver"`
	Path     string `json:"path,omitempty"`
	DSN      string `json:"dsn,omitempty"`
	MaxConns int32  `json:"max_conns,omitempty"`
}

type FetchConfig struct {
	TimeoutSeconds      int      `json:"timeout_seconds"`
	MaxBytes            int64    `json:"max_bytes"`
	MaxRedirects        int      `json:"max_redirects"`
	MaxRateLimitRetries int      `json:"max_rate_limit_retries"`
	UserAgent           string   `json:"user_agent,omitempty"`
	Proxies             []string `json:"proxies,omitempty"`
	ProxyBanMinutes     int      `json:"proxy_ban_minutes"`
}

type ScrapingBeeConfig struct {
	APIKey   string `json:"api_key,omitempty"`
	APIURL   string `json:"api_url"`
	RenderJS bool   `json:"render_js"`
	Always   bool   `json:"always"`
}

type ZyteConfig struct {
	APIKey         string `json:"api_key,omitempty"`
	APIURL         string `json:"api_url"`
	BrowserHTML    bool   `json:"browser_html"`
	StructuredData bool   `json:"structured_data"`
	ExtractType    string `json:"extract_type"`
	Always         bool   `json:"always"`
	Debug          bool   `json:"debug"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Hour     int    `json:"hour"`
	Timezone string `json:"timezone,omitempty"`
}

type RefreshConfig struct {
	// SourceIntervalMS paces sources within a batch; zero disables pacing.
	SourceIntervalMS int `json:"source_interval_ms"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Stage: StageDev,
		Store: StoreConfig{Driver: DriverSQLite},
		Fetch: FetchConfig{
			TimeoutSeconds:      12,
			MaxBytes:            1536 * 1024,
			MaxRedirects:        5,
			MaxRateLimitRetries: 3,
			ProxyBanMinutes:     10,
		},
		ScrapingBee: ScrapingBeeConfig{
			APIURL: "https://app.scrapingbee.com/api/v1/",
		},
		Zyte: ZyteConfig{
			APIURL:         "https://api.zyte.com/v1/extract",
			BrowserHTML:    true,
			StructuredData: true,
			ExtractType:    "jobPosting",
			TimeoutSeconds: 60,
		},
		Schedule: ScheduleConfig{Enabled: true, Hour: 9},
	}
}

// ConfigDir is $JOBWATCH_CONFIG_DIR when set, otherwise jobwatch under the
// user config directory.
func ConfigDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvPrefix + "CONFIG_DIR")); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, DirName), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

func ProxiesPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ProxiesFileName), nil
}

// Load reads config.json from the config directory, applies JOBWATCH_*
// overrides and validates the result.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFrom(path)
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json5.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.Stage = NormalizeStage(cfg.Stage)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// NormalizeStage maps "prod" and "production" to production and anything
// else to dev.
func NormalizeStage(stage string) string {
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case "prod", StageProduction:
		return StageProduction
	default:
		return StageDev
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("fetch.timeout_seconds must be positive"))
	}
	if c.Fetch.MaxBytes <= 0 {
		errs = append(errs, errors.New("fetch.max_bytes must be positive"))
	}
	if c.Fetch.MaxRedirects < 0 || c.Fetch.MaxRateLimitRetries < 0 {
		errs = append(errs, errors.New("fetch retry limits must not be negative"))
	}
	if c.Zyte.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("zyte.timeout_seconds must be positive"))
	}
	if c.Refresh.SourceIntervalMS < 0 {
		errs = append(errs, errors.New("refresh.source_interval_ms must not be negative"))
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// DBPath returns the sqlite file: store.path when set, otherwise
// <dir>/data/app.<stage>.db.
func (c Config) DBPath(dir string) string {
	if path := strings.TrimSpace(c.Store.Path); path != "" {
		return path
	}
	return filepath.Join(dir, DataDirName, "app."+NormalizeStage(c.Stage)+".db")
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func (c Config) ZyteTimeout() time.Duration {
	return time.Duration(c.Zyte.TimeoutSeconds) * time.Second
}

func (c Config) ProxyBan() time.Duration {
	return time.Duration(c.Fetch.ProxyBanMinutes) * time.Minute
}

func (c Config) SourceInterval() time.Duration {
	return time.Duration(c.Refresh.SourceIntervalMS) * time.Millisecond
}

func applyEnv(cfg *Config) {
	cfg.Stage = envString("STAGE", cfg.Stage)

	cfg.Store.Driver = envString("DB_DRIVER", cfg.Store.Driver)
	cfg.Store.Path = envString("DB_PATH", cfg.Store.Path)
	cfg.Store.DSN = envString("DATABASE_URL", cfg.Store.DSN)

	cfg.Fetch.TimeoutSeconds = envInt("FETCH_TIMEOUT_SECONDS", cfg.Fetch.TimeoutSeconds)
	cfg.Fetch.UserAgent = envString("USER_AGENT", cfg.Fetch.UserAgent)

	cfg.ScrapingBee.APIKey = envString("SCRAPINGBEE_API_KEY", cfg.ScrapingBee.APIKey)
	cfg.ScrapingBee.APIURL = envString("SCRAPINGBEE_API_URL", cfg.ScrapingBee.APIURL)
	cfg.ScrapingBee.RenderJS = envBool("SCRAPINGBEE_RENDER_JS", cfg.ScrapingBee.RenderJS)
	cfg.ScrapingBee.Always = envBool("SCRAPINGBEE_ALWAYS", cfg.ScrapingBee.Always)

	cfg.Zyte.APIKey = envString("ZYTE_API_KEY", cfg.Zyte.APIKey)
	cfg.Zyte.APIURL = envString("ZYTE_API_URL", cfg.Zyte.APIURL)
	cfg.Zyte.BrowserHTML = envBool("ZYTE_BROWSER_HTML", cfg.Zyte.BrowserHTML)
	cfg.Zyte.StructuredData = envBool("ZYTE_STRUCTURED_DATA", cfg.Zyte.StructuredData)
	cfg.Zyte.ExtractType = envString("ZYTE_EXTRACT_TYPE", cfg.Zyte.ExtractType)
	cfg.Zyte.Always = envBool("ZYTE_ALWAYS", cfg.Zyte.Always)
	cfg.Zyte.Debug = envBool("ZYTE_DEBUG", cfg.Zyte.Debug)

	cfg.Schedule.Enabled = envBool("ENABLE_INTERNAL_CRON", cfg.Schedule.Enabled)
	cfg.Schedule.Hour = envInt("CRON_HOUR", cfg.Schedule.Hour)
	cfg.Schedule.Timezone = envString("CRON_TZ", cfg.Schedule.Timezone)

	cfg.Refresh.SourceIntervalMS = envInt("SOURCE_INTERVAL_MS", cfg.Refresh.SourceIntervalMS)
	cfg.Metrics.Addr = envString("METRICS_ADDR", cfg.Metrics.Addr)
}

// Init writes default config.json and proxies.txt if they don't already exist.
func Init() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return InitDir(dir)
}

func InitDir(dir string) ([]string, error) {
	var created []string
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return created, err
	}

	configPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := writeConfig(configPath, DefaultConfig()); err != nil {
			return created, err
		}
		created = append(created, configPath)
	}

	proxiesPath := filepath.Join(dir, ProxiesFileName)
	if _, err := os.Stat(proxiesPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(proxiesPath, []byte(""), 0o644); err != nil {
			return created, err
		}
		created = append(created, proxiesPath)
	}

	return created, nil
}

func writeConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadProxies resolves the proxy list: the flag value, then JOBWATCH_PROXIES,
// then proxies.txt, then fetch.proxies from config.json.
func LoadProxies(flagValue string, cfg Config) ([]string, error) {
	if strings.TrimSpace(flagValue) != "" {
		return splitCSV(flagValue), nil
	}

	if env := strings.TrimSpace(os.Getenv(EnvPrefix + "PROXIES")); env != "" {
		return splitCSV(env), nil
	}

	path, err := ProxiesPath()
	if err != nil {
		return nil, err
	}
	proxies, err := readProxiesFile(path)
	if err != nil {
		return nil, err
	}
	if len(proxies) > 0 {
		return proxies, nil
	}
	return cfg.Fetch.Proxies, nil
}

func readProxiesFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var proxies []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	return proxies, nil
}

func envString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(EnvPrefix + key)); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if val == "" {
		return fallback
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
