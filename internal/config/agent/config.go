package agent_config

import (
	"time"

	"github.com/NordCoder/pingerus-agent/internal/obs"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

type Scheduler struct {
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	QueueSize        int           `mapstructure:"queue_size"`
	ShutdownGrace    time.Duration `mapstructure:"shutdown_grace"`
	HistorySize      int           `mapstructure:"history_size"`
	StrictInvariants bool          `mapstructure:"strict_invariants"`
}

type Checks struct {
	UserAgent       string        `mapstructure:"user_agent"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	MaxMessageBytes int           `mapstructure:"max_message_bytes"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max"`
}

type Events struct {
	Enable    bool     `mapstructure:"enable"`
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	QueueSize int      `mapstructure:"queue_size"`
	Workers   int      `mapstructure:"workers"`
}

type Daemon struct {
	Enable  bool   `mapstructure:"enable"`
	PIDFile string `mapstructure:"pidfile"`
}

type Config struct {
	App          App       `mapstructure:"app"`
	Log          Log       `mapstructure:"log"`
	OTEL         OTEL      `mapstructure:"otel"`
	Server       Server    `mapstructure:"server"`
	Scheduler    Scheduler `mapstructure:"scheduler"`
	Checks       Checks    `mapstructure:"checks"`
	Events       Events    `mapstructure:"events"`
	Daemon       Daemon    `mapstructure:"daemon"`
	MonitorsFile string    `mapstructure:"monitors_file"`
}

func (c *Config) LoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
		File:   c.Log.File,
	}
}

func (c *Config) OTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: c.OTEL.ServiceName,
		Version:     c.App.Version,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
