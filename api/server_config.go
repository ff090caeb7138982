package api

type ServerConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int64  `mapstructure:"port" json:"port,omitempty"`
	Mode     string `mapstructure:"mode" json:"mode,omitempty"`
	Database struct {
		DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
	} `mapstructure:"database" json:"database,omitempty"`
	RateLimit struct {
		Rate  float64 `mapstructure:"rate" json:"rate,omitempty"`
		Burst int     `mapstructure:"burst" json:"burst,omitempty"`
	} `mapstructure:"rate_limit" json:"rate_limit,omitempty"`
}

// SchedulerEnabled reports whether this process also runs the trigger scheduler.
func (c ServerConfig) SchedulerEnabled() bool {
	return c.Mode == "scheduler"
}
