package registry

// Entry is one monitor as it appears in the configuration, before validation.
type Entry struct {
	ID                string         `yaml:"id"`
	Type              string         `yaml:"type"`
	Schedule          string         `yaml:"schedule"`
	Target            map[string]any `yaml:"target"`
	TimeoutMs         int64          `yaml:"timeoutMs"`
	Retries           int            `yaml:"retries"`
	FailureThreshold  int            `yaml:"failureThreshold"`
	RecoveryThreshold int            `yaml:"recoveryThreshold"`
	Enabled           *bool          `yaml:"enabled"`
}

// File is the on-disk layout of the monitors file.
type File struct {
	Monitors []Entry `yaml:"monitors"`
}

type httpTargetCfg struct {
	URL            string            `mapstructure:"url"`
	Method         string            `mapstructure:"method"`
	Headers        map[string]string `mapstructure:"headers"`
	VerifyTLS      *bool             `mapstructure:"verifyTls"`
	AcceptedStatus []any             `mapstructure:"acceptedStatus"`
	BodyPattern    string            `mapstructure:"bodyPattern"`
}

type tcpTargetCfg struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type commandTargetCfg struct {
	Command           string   `mapstructure:"command"`
	Args              []string `mapstructure:"args"`
	AcceptedExitCodes []int    `mapstructure:"acceptedExitCodes"`
}

type certificateTargetCfg struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	ServerName string `mapstructure:"serverName"`
	WarnDays   *int   `mapstructure:"warnDays"`
	CAFile     string `mapstructure:"caFile"`
}

type processTargetCfg struct {
	Name    string `mapstructure:"name"`
	PID     int32  `mapstructure:"pid"`
	PIDFile string `mapstructure:"pidFile"`
}

type loadAvgTargetCfg struct {
	Max1  *float64 `mapstructure:"max1"`
	Max5  *float64 `mapstructure:"max5"`
	Max15 *float64 `mapstructure:"max15"`
}

type postgresTargetCfg struct {
	DSN   string `mapstructure:"dsn"`
	Query string `mapstructure:"query"`
}
