package agent_config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Load reads the agent settings from path (optional), the environment and
// any flags set on fs. Flags win over the environment, which wins over the file.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetDefault("app.name", "pingerus-agent")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.version", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "pingerus-agent")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("server.http_addr", ":8085")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "5s")

	v.SetDefault("scheduler.max_concurrent", 4)
	v.SetDefault("scheduler.queue_size", 64)
	v.SetDefault("scheduler.shutdown_grace", "10s")
	v.SetDefault("scheduler.history_size", 50)
	v.SetDefault("scheduler.strict_invariants", false)

	v.SetDefault("checks.user_agent", "Pingerus-Agent/1.0")
	v.SetDefault("checks.follow_redirects", true)
	v.SetDefault("checks.max_message_bytes", 1024)
	v.SetDefault("checks.max_body_bytes", 64*1024)
	v.SetDefault("checks.retry_backoff", "200ms")
	v.SetDefault("checks.retry_backoff_max", "2s")

	v.SetDefault("events.enable", false)
	v.SetDefault("events.brokers", []string{"localhost:9094"})
	v.SetDefault("events.topic", "pingerus.agent.transitions")
	v.SetDefault("events.queue_size", 256)
	v.SetDefault("events.workers", 1)

	v.SetDefault("daemon.enable", false)
	v.SetDefault("daemon.pidfile", "")
	v.SetDefault("monitors_file", "monitors.yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, flag := range map[string]string{
			"monitors_file":  "monitors",
			"log.level":      "log-level",
			"daemon.enable":  "daemon",
			"daemon.pidfile": "pidfile",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Scheduler.MaxConcurrent < 1 {
		errs = append(errs, ErrConfig("scheduler.max_concurrent must be at least 1"))
	}
	if c.Scheduler.QueueSize < 0 {
		errs = append(errs, ErrConfig("scheduler.queue_size must not be negative"))
	}
	if c.Scheduler.HistorySize < 1 {
		errs = append(errs, ErrConfig("scheduler.history_size must be at least 1"))
	}
	if c.Checks.MaxMessageBytes < 32 {
		errs = append(errs, ErrConfig("checks.max_message_bytes must be at least 32"))
	}
	if c.Events.Enable && (len(c.Events.Brokers) == 0 || c.Events.Topic == "") {
		errs = append(errs, ErrConfig("events.brokers and events.topic are required when events are enabled"))
	}
	return errors.Join(errs...)
}
