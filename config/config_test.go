package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfigurationFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	content := `{
		"program": ["/opt/target/ntpd.track", "-n"],
		"port": 123,
		"responseTimeout": "2s",
		"listenReady": false,
		"jobs": 4
	}`
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	conf, err := ParseConfigurationFile(p)
	if err != nil {
		t.Fatalf("Failed to parse: %s", err)
	}
	if conf.Port != 123 || conf.Jobs != 4 || conf.ListenReady {
		t.Errorf("Unexpected configuration %+v", conf)
	}
	if conf.ResponseTimeout.Duration != 2*time.Second {
		t.Errorf("Expected 2s response timeout, got %s", conf.ResponseTimeout)
	}
	if conf.StartupTimeout.Duration != 5*time.Second || conf.Host != "127.0.0.1" {
		t.Errorf("Defaults were not kept: %+v", conf)
	}
}

func TestParseConfigurationFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ParseConfigurationFile(""); err == nil {
		t.Errorf("Expected error for empty path")
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"startupTimeout": 5}`), 0644)
	if _, err := ParseConfigurationFile(bad); err == nil {
		t.Errorf("Expected error for numeric duration")
	}
	port := filepath.Join(dir, "port.json")
	os.WriteFile(port, []byte(`{"port": 70000}`), 0644)
	if _, err := ParseConfigurationFile(port); err == nil {
		t.Errorf("Expected error for out of range port")
	}
}

func TestParseTimeout(t *testing.T) {
	cases := map[string]float64{
		"24h":     86400,
		"1h30m":   5400,
		"2m5s":    125,
		"45s":     45,
		"":        0,
		"garbage": 0,
	}
	for in, expected := range cases {
		if got := ParseTimeout(in); got != expected {
			t.Errorf("ParseTimeout(%q): expected %v, got %v", in, expected, got)
		}
	}
}

func TestParseRunArgs(t *testing.T) {
	args, err := ParseRunArgs(`-M 0 -a=--startup_time_limit=1000 -a=--disable_listen_ready -a=--early_termination=none -a=--custom=7`)
	if err != nil {
		t.Fatalf("Failed to parse: %s", err)
	}
	if args.StartupTimeLimit != 1000 || args.ResponseTimeLimit != 500000 {
		t.Errorf("Unexpected limits %+v", args)
	}
	if !args.DisableListenReady || args.DisableAmpMutation {
		t.Errorf("Unexpected flags %+v", args)
	}
	if args.EarlyTermination != "none" {
		t.Errorf("Unexpected early termination %q", args.EarlyTermination)
	}
	if args.Extra["custom"] != 7 {
		t.Errorf("Unknown options should be kept, got %v", args.Extra)
	}
}

func TestLoadRunConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, RunConfigFile)
	content := `{"pkg": "ntp", "target": "/usr/sbin/ntpd", "port": "123", "timeout": "1h", "args": "-a=--response_time_limit=20"}`
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	rc, err := LoadRunConfig(p)
	if err != nil {
		t.Fatalf("Failed to load: %s", err)
	}
	if rc.Package != "ntp" || rc.Program != "/usr/sbin/ntpd" || rc.Port != 123 {
		t.Errorf("Unexpected run config %+v", rc)
	}
	if rc.Timeout != 3600 || rc.Args.ResponseTimeLimit != 20 {
		t.Errorf("Unexpected timeout or args %+v", rc)
	}
	if rc.TrackProgram() != "/usr/sbin/ntpd.track" {
		t.Errorf("Unexpected track program %s", rc.TrackProgram())
	}
}
