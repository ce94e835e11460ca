package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const RunConfigFile = "fuzz.cfg"

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Errorf("Duration must be a string like \"5s\": %s", data)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Errorf("Invalid duration %q: %s", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func Default() Configuration {
	return Configuration{
		Host:            "127.0.0.1",
		Port:            53,
		StartupTimeout:  Duration{5 * time.Second},
		ResponseTimeout: Duration{60 * time.Second},
		ReceiveIdle:     Duration{2 * time.Second},
		KillGrace:       Duration{5 * time.Second},
		ListenReady:     true,
		Jobs:            1,
		LogLevel:        "info",
	}
}

// ParseConfigurationFile reads the tool configuration. Missing fields keep
// their defaults.
func ParseConfigurationFile(path string) (Configuration, error) {
	conf := Default()
	if len(path) == 0 {
		return conf, errors.New("Path to the configuration file was empty")
	}

	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, errors.Errorf("Failed to read configuration file: %s", err)
	}
	if err := json.Unmarshal(dat, &conf); err != nil {
		return conf, errors.Errorf("Failed to parse configuration file: %s", err)
	}
	return conf, conf.Validate()
}

func (c Configuration) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("Invalid port %d", c.Port)
	}
	if c.StartupTimeout.Duration <= 0 || c.ResponseTimeout.Duration <= 0 || c.ReceiveIdle.Duration <= 0 {
		return errors.New("Timeouts must be positive")
	}
	if c.Jobs < 1 {
		return errors.Errorf("Invalid job count %d", c.Jobs)
	}
	return nil
}

var timeoutRe = regexp.MustCompile(`^((?P<hours>\d+)h)?((?P<minutes>\d+)m)?((?P<seconds>\d+)s)?`)

// ParseTimeout converts a 1h2m3s style campaign timeout to seconds.
func ParseTimeout(s string) float64 {
	m := timeoutRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	unit := map[string]float64{"hours": 3600, "minutes": 60, "seconds": 1}
	total := 0.0
	for i, name := range timeoutRe.SubexpNames() {
		if u, ok := unit[name]; ok && m[i] != "" {
			n, _ := strconv.Atoi(m[i])
			total += float64(n) * u
		}
	}
	return total
}

func defaultRunArgs() RunArgs {
	return RunArgs{
		StartupTimeLimit:  500000,
		ResponseTimeLimit: 500000,
		EarlyTermination:  "full",
	}
}

// ParseRunArgs extracts the -a=--key[=value] tokens of a fuzzer command line.
func ParseRunArgs(s string) (RunArgs, error) {
	raw := make(map[string]interface{})
	for _, tok := range strings.Fields(s) {
		if !strings.HasPrefix(tok, "-a=") {
			continue
		}
		tok = strings.TrimLeft(strings.TrimSpace(strings.SplitN(tok, "=", 2)[1]), "-")
		if k, v, ok := strings.Cut(tok, "="); ok {
			if n, err := strconv.Atoi(v); err == nil {
				raw[k] = n
			} else {
				raw[k] = v
			}
		} else {
			raw[tok] = true
		}
	}

	args := defaultRunArgs()
	if err := decode(raw, &args); err != nil {
		return args, errors.WithMessage(err, "Failed to decode fuzzer arguments")
	}
	return args, nil
}

func decode(input interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// LoadRunConfig reads a fuzz.cfg file.
func LoadRunConfig(path string) (RunConfig, error) {
	var rc RunConfig
	dat, err := os.ReadFile(path)
	if err != nil {
		return rc, errors.Errorf("Failed to read run config: %s", err)
	}
	raw := make(map[string]interface{})
	if err := json.Unmarshal(dat, &raw); err != nil {
		return rc, errors.Errorf("Failed to parse run config %s: %s", path, err)
	}
	if err := decode(raw, &rc); err != nil {
		return rc, errors.WithMessage(err, "Failed to decode run config "+path)
	}
	if t, ok := raw["timeout"].(string); ok {
		rc.Timeout = ParseTimeout(t)
	}
	if rc.Args, err = ParseRunArgs(rc.RawArgs); err != nil {
		return rc, err
	}
	return rc, nil
}

// TrackProgram is the execution-tracing build of the run's target.
func (rc RunConfig) TrackProgram() string {
	return rc.Program + ".track"
}
