package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/distcompute/internal/tracker"
)

// Ошибки конфигурации.
var (
	// ErrInvalidConfig: конфигурация не прошла проверку.
	ErrInvalidConfig = errors.New("invalid configuration")
)

/* Tracker */

type TrackerConfig struct {
	URL            string        `yaml:"url"`
	Stage          string        `yaml:"stage"`
	Nickname       string        `yaml:"nickname"`
	Verbose        bool          `yaml:"verbose"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func defaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Nickname:       tracker.DefaultNickname,
		Verbose:        true,
		RequestTimeout: 30 * time.Second,
	}
}

func (t *TrackerConfig) loadFromEnv() error {
	loadEnvString("TRACKER_URL", &t.URL)
	loadEnvString("WORKER_STAGE", &t.Stage)
	loadEnvString("WORKER_NICKNAME", &t.Nickname)
	return errors.Join(
		loadEnvBool("WORKER_VERBOSE", &t.Verbose),
		loadEnvDuration("TRACKER_REQUEST_TIMEOUT", &t.RequestTimeout),
	)
}

/* Retry */

type RetryConfig struct {
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     string        `yaml:"backoff"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Delay:       15 * time.Second,
		MaxAttempts: 0,
		Backoff:     tracker.BackoffFixed,
		MaxDelay:    5 * time.Minute,
	}
}

func (r *RetryConfig) loadFromEnv() error {
	loadEnvString("RETRY_BACKOFF", &r.Backoff)
	return errors.Join(
		loadEnvDuration("RETRY_DELAY", &r.Delay),
		loadEnvInt("RETRY_MAX_ATTEMPTS", &r.MaxAttempts),
		loadEnvDuration("RETRY_MAX_DELAY", &r.MaxDelay),
	)
}

// Policy возвращает политику повторов транспорта.
func (r RetryConfig) Policy() tracker.RetryPolicy {
	return tracker.RetryPolicy{
		Delay:       r.Delay,
		MaxAttempts: r.MaxAttempts,
		Backoff:     r.Backoff,
		MaxDelay:    r.MaxDelay,
	}
}

/* Runner */

type RunnerConfig struct {
	Handler      string        `yaml:"handler"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ForwardURL   string        `yaml:"forward_url"`
	MaxJobs      int           `yaml:"max_jobs"`
}

func defaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Handler:      "echo",
		PollInterval: 30 * time.Second,
	}
}

func (r *RunnerConfig) loadFromEnv() error {
	loadEnvString("RUNNER_HANDLER", &r.Handler)
	loadEnvString("RUNNER_FORWARD_URL", &r.ForwardURL)
	return errors.Join(
		loadEnvDuration("RUNNER_POLL_INTERVAL", &r.PollInterval),
		loadEnvInt("RUNNER_MAX_JOBS", &r.MaxJobs),
	)
}

/* Log / Metrics */

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultLogConfig() LogConfig {
	return LogConfig{Level: "INFO", Format: "text"}
}

func (l *LogConfig) loadFromEnv() {
	loadEnvString("LOG_LEVEL", &l.Level)
	loadEnvString("LOG_FORMAT", &l.Format)
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func (m *MetricsConfig) loadFromEnv() {
	loadEnvString("METRICS_ADDR", &m.Addr)
}

// Config: полная конфигурация воркера.
type Config struct {
	Tracker TrackerConfig `yaml:"tracker"`
	Retry   RetryConfig   `yaml:"retry"`
	Runner  RunnerConfig  `yaml:"runner"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Tracker: defaultTrackerConfig(),
		Retry:   defaultRetryConfig(),
		Runner:  defaultRunnerConfig(),
		Log:     defaultLogConfig(),
	}
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML-файл
// (если path не пустой), затем переменные окружения.
// Validate не вызывается: флаги CLI применяются после Load.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile накладывает значения из YAML-файла поверх текущих.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// LoadFromEnv накладывает значения из переменных окружения.
func (c *Config) LoadFromEnv() error {
	c.Log.loadFromEnv()
	c.Metrics.loadFromEnv()

	if err := errors.Join(
		c.Tracker.loadFromEnv(),
		c.Retry.loadFromEnv(),
		c.Runner.loadFromEnv(),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate проверяет обязательные поля и допустимые значения.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Tracker.URL) == "" {
		errs = append(errs, errors.New("tracker url is required"))
	}
	if strings.TrimSpace(c.Tracker.Stage) == "" {
		errs = append(errs, errors.New("worker stage is required"))
	}
	switch c.Retry.Backoff {
	case "", tracker.BackoffFixed, tracker.BackoffExponential:
	default:
		errs = append(errs, fmt.Errorf("unknown retry backoff %q", c.Retry.Backoff))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry max_attempts must not be negative"))
	}
	if c.Runner.Handler == "" {
		errs = append(errs, errors.New("runner handler is required"))
	}
	if c.Runner.Handler == "http" && c.Runner.ForwardURL == "" {
		errs = append(errs, errors.New("runner forward_url is required for the http handler"))
	}
	if c.Runner.MaxJobs < 0 {
		errs = append(errs, errors.New("runner max_jobs must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SessionConfig переводит конфигурацию в параметры tracker.Connect.
func (c Config) SessionConfig(logger *slog.Logger, metrics *tracker.Metrics) tracker.Config {
	return tracker.Config{
		URL:      c.Tracker.URL,
		Stage:    c.Tracker.Stage,
		Nickname: c.Tracker.Nickname,
		Verbose:  c.Tracker.Verbose,
		Timeout:  c.Tracker.RequestTimeout,
		Retry:    c.Retry.Policy(),
		Logger:   logger,
		Metrics:  metrics,
	}
}

// LoadDotEnv загружает переменные из .env-файлов. Отсутствующие файлы пропускаются,
// уже заданные переменные окружения не перезаписываются.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	*result = s
}

func loadEnvInt(key string, result *int) error {
	s, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*result = n
	return nil
}

func loadEnvBool(key string, result *bool) error {
	s, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*result = b
	return nil
}

func loadEnvDuration(key string, result *time.Duration) error {
	s, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*result = d
	return nil
}
