package cfg

import (
	"flag"
	"testing"
	"time"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	c := &Config{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return c
}

func TestDefaults(t *testing.T) {
	c := parse(t)
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if c.Backend.TelemetryURL() != "http://backend:8000/api/v1/telemetry/events" {
		t.Fatalf("unexpected telemetry url %s", c.Backend.TelemetryURL())
	}
	if c.Bridge.PollInterval != 2*time.Second || c.Bridge.HealthTTL != 30*time.Second {
		t.Fatalf("unexpected bridge defaults %+v", c.Bridge)
	}
	if c.Feed.Timeout != 5*time.Second || c.Backend.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeouts feed=%v backend=%v", c.Feed.Timeout, c.Backend.Timeout)
	}
	if c.Registry.Enabled() {
		t.Fatalf("registry enrichment must be off by default")
	}
	if c.Server.ListenAddress != ":8080" || c.LogLevel != "info" {
		t.Fatalf("unexpected server/log defaults %q %q", c.Server.ListenAddress, c.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"log level", []string{"-log.level=loud"}},
		{"poll interval", []string{"-poll.interval=0s"}},
		{"health ttl", []string{"-health.ttl=0s"}},
		{"backend url", []string{"-backend.url="}},
		{"push timeout", []string{"-backend.push-timeout=0s"}},
		{"registry format", []string{"-registry.url=http://example", "-registry.format=xml"}},
		{"listen address", []string{"-server.listen-address=8080"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if err := parse(t, tc.args...).Validate(); err == nil {
				t.Fatalf("expected %v to be rejected", tc.args)
			}
		})
	}

	if err := parse(t, "-feed.file=/run/readsb/aircraft.json", "-backend.station-id=4", "-log.level=debug").Validate(); err != nil {
		t.Fatalf("valid flags rejected: %v", err)
	}
}
