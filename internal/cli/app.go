package cli

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/shaiso/distcompute/internal/config"
	"github.com/shaiso/distcompute/internal/telemetry"
	"github.com/shaiso/distcompute/internal/tracker"
)

// Options: значения persistent-флагов корневой команды.
type Options struct {
	ConfigPath string
	URL        string
	Stage      string
	Nickname   string
	Verbose    bool
	LogLevel   string
	LogFormat  string
	JSON       bool
}

// Bind регистрирует persistent-флаги на cmd.
func (o *Options) Bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&o.ConfigPath, "config", "", "Path to YAML config file")
	pf.StringVar(&o.URL, "url", "", "Tracker URL (env TRACKER_URL)")
	pf.StringVar(&o.Stage, "stage", "", "Pipeline stage name, e.g. Mapping (env WORKER_STAGE)")
	pf.StringVar(&o.Nickname, "nickname", tracker.DefaultNickname, "Worker nickname (env WORKER_NICKNAME)")
	pf.BoolVar(&o.Verbose, "verbose", true, "Log session lifecycle at INFO level (env WORKER_VERBOSE)")
	pf.StringVar(&o.LogLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARN, ERROR (env LOG_LEVEL)")
	pf.StringVar(&o.LogFormat, "log-format", "text", "Log format: text, json (env LOG_FORMAT)")
	pf.BoolVar(&o.JSON, "json", false, "Output in JSON format")
}

// App: зависимости, собранные для выполнения команды.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *tracker.Metrics
	Out      *Output
}

// Load собирает конфигурацию (.env, файл, окружение, флаги), проверяет её
// и создаёт логгер и метрики. apply применяет флаги конкретной команды.
func (o *Options) Load(cmd *cobra.Command, apply func(c *config.Config)) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	if changed(cmd, "url") {
		cfg.Tracker.URL = o.URL
	}
	if changed(cmd, "stage") {
		cfg.Tracker.Stage = o.Stage
	}
	if changed(cmd, "nickname") {
		cfg.Tracker.Nickname = o.Nickname
	}
	if changed(cmd, "verbose") {
		cfg.Tracker.Verbose = o.Verbose
	}
	if changed(cmd, "log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if changed(cmd, "log-format") {
		cfg.Log.Format = o.LogFormat
	}
	if apply != nil {
		apply(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := telemetry.NewLogger(telemetry.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	out := NewOutput(o.JSON)
	out.w = cmd.OutOrStdout()
	out.errW = cmd.ErrOrStderr()

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  tracker.NewMetrics(reg),
		Out:      out,
	}, nil
}

// Connect регистрирует воркера по конфигурации приложения.
func (a *App) Connect(ctx context.Context) (*tracker.Session, error) {
	return tracker.Connect(ctx, a.Config.SessionConfig(a.Logger, a.Metrics))
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}
