package config

import "time"

// Duration is a time.Duration decoded from a Go duration string.
type Duration struct {
	time.Duration
}

type Configuration struct {
	Program         []string `json:"program"`
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	StartupTimeout  Duration `json:"startupTimeout"`
	ResponseTimeout Duration `json:"responseTimeout"`
	ReceiveIdle     Duration `json:"receiveIdle"`
	KillGrace       Duration `json:"killGrace"`
	ListenReady     bool     `json:"listenReady"`
	TrackParser     string   `json:"trackParser"`
	RecordPcap      bool     `json:"recordPcap"`
	Jobs            int      `json:"jobs"`
	ForceRefresh    bool     `json:"forceRefresh"`
	TrustStaleCache bool     `json:"trustStaleCache"`
	LogFile         string   `json:"logFile"`
	LogLevel        string   `json:"logLevel"`
	MetricsFile     string   `json:"metricsFile"`
}

// RunConfig is the fuzz.cfg of one campaign run.
type RunConfig struct {
	Package string  `mapstructure:"pkg" json:"package"`
	Program string  `mapstructure:"target" json:"program"`
	Port    int     `mapstructure:"port" json:"port"`
	Timeout float64 `mapstructure:"-" json:"timeout"`
	RawArgs string  `mapstructure:"args" json:"-"`
	Args    RunArgs `mapstructure:"-" json:"args"`
}

// RunArgs are the fuzzer options passed as -a=--key=value tokens.
type RunArgs struct {
	StartupTimeLimit   int                    `mapstructure:"startup_time_limit" json:"startup_time_limit"`
	ResponseTimeLimit  int                    `mapstructure:"response_time_limit" json:"response_time_limit"`
	DisableListenReady bool                   `mapstructure:"disable_listen_ready" json:"disable_listen_ready"`
	EarlyTermination   string                 `mapstructure:"early_termination" json:"early_termination"`
	DisableAmpMutation bool                   `mapstructure:"disable_amp_mutation" json:"disable_amp_mutation"`
	Extra              map[string]interface{} `mapstructure:",remain" json:"extra,omitempty"`
}
